package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("6F9619FF-8B86-D011-B42D-00CF4FC964FF")
	require.NoError(t, err)
	assert.Equal(t, ID("6f9619ff-8b86-d011-b42d-00cf4fc964ff"), id)

	_, err = ParseID("family-42")
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	a, b := NewID(), NewID()
	ids, err := ParseIDs([]string{a.String(), b.String()})
	require.NoError(t, err)
	assert.Equal(t, []ID{a, b}, ids)

	_, err = ParseIDs([]string{a.String(), "nope"})
	assert.Error(t, err)
}

func TestNewDeterministicID(t *testing.T) {
	assert.Equal(t, NewDeterministicID("system", "scoring"), NewDeterministicID("system", "scoring"))
	assert.NotEqual(t, NewDeterministicID("system", "scoring"), NewDeterministicID("system", "audit"))
}

func TestScan(t *testing.T) {
	u := uuid.New()

	tests := []struct {
		name  string
		value any
		want  ID
	}{
		{"nil", nil, ""},
		{"string", u.String(), ID(u.String())},
		{"bytes", []byte(u.String()), ID(u.String())},
		{"array", [16]byte(u), ID(u.String())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			require.NoError(t, id.Scan(tt.value))
			assert.Equal(t, tt.want, id)
		})
	}

	var id ID
	assert.Error(t, id.Scan(42))
}

func TestValue(t *testing.T) {
	v, err := ID("").Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ID("abc").Value()
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}
