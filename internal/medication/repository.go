package medication

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Store persists medication records. There is deliberately no update or
// delete: history is append-only.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	ListByFamily(ctx context.Context, familyID types.ID) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// Repository provides database operations for medication records
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new medication repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Create appends a medication record
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	entries, err := json.Marshal(rec.Entries)
	if err != nil {
		return errors.Wrap(err, "failed to marshal medication entries")
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO aid.medication_records (id, family_id, visit_id, raw_text, entries, image_url, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		rec.ID, rec.FamilyID, rec.VisitID, rec.RawText, entries, rec.ImageURL, rec.CreatedBy,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create medication record")
	}
	return nil
}

// ListByFamily returns a family's medication history, newest first
func (r *Repository) ListByFamily(ctx context.Context, familyID types.ID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, family_id, visit_id, raw_text, entries, image_url, created_by, created_at
		FROM aid.medication_records
		WHERE family_id = $1
		ORDER BY created_at DESC`, familyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list medication records")
	}
	return collect(rows)
}

// ListAll returns every medication record, newest first
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, family_id, visit_id, raw_text, entries, image_url, created_by, created_at
		FROM aid.medication_records
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list medication records")
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var entries []byte
		if err := rows.Scan(&rec.ID, &rec.FamilyID, &rec.VisitID, &rec.RawText, &entries, &rec.ImageURL, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan medication record")
		}
		// A corrupt entries column leaves the record with no entries rather
		// than hiding the whole history.
		if err := json.Unmarshal(entries, &rec.Entries); err != nil {
			rec.Entries = nil
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate medication records")
	}
	return records, nil
}
