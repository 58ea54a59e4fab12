package audit

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/metrics"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Store is the append-only audit log.
type Store interface {
	Append(ctx context.Context, entry *AuditEntry) error
	FindByID(ctx context.Context, id types.ID) (*AuditEntry, error)
	List(ctx context.Context, filter ListEntriesFilter) ([]AuditEntry, int, error)
	GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]AuditEntry, error)
	VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error)
}

// Repository provides append-only audit log operations
type Repository struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastHash string
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, sequence, timestamp, hash, prev_hash,
	actor_type, actor_id, actor_ip,
	action, resource_type, COALESCE(resource_id, ''),
	changes, COALESCE(correlation_id, '')`

// Initialize loads the last hash from the database
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM audit.entries
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&hash)

	if err != nil && !stderrors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, "failed to get last audit hash")
	}

	r.lastHash = hash
	return nil
}

// Append chains entry to the last hash and stores it. Appends are serialized
// so the chain has a single head.
func (r *Repository) Append(ctx context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.calculateHash()

	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return errors.Wrap(err, "failed to marshal changes")
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit.entries (
			id, timestamp, hash, prev_hash,
			actor_type, actor_id, actor_ip,
			action, resource_type, resource_id,
			changes, correlation_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, NULLIF($12, '')
		) RETURNING sequence`,
		entry.ID, entry.Timestamp, entry.Hash, entry.PrevHash,
		entry.ActorType, entry.ActorID.String(), entry.ActorIP,
		entry.Action, entry.ResourceType, entry.ResourceID,
		changesJSON, entry.CorrelationID,
	).Scan(&entry.Sequence)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	metrics.RecordAuditEntry()
	return nil
}

func scanEntry(row pgx.Row) (*AuditEntry, error) {
	var e AuditEntry
	var actorID string
	var changesJSON []byte

	err := row.Scan(
		&e.ID, &e.Sequence, &e.Timestamp, &e.Hash, &e.PrevHash,
		&e.ActorType, &actorID, &e.ActorIP,
		&e.Action, &e.ResourceType, &e.ResourceID,
		&changesJSON, &e.CorrelationID,
	)
	if err != nil {
		return nil, err
	}

	e.ActorID = types.ID(actorID)
	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &e.Changes); err != nil {
			e.Changes = nil
		}
	}
	return &e, nil
}

// List lists audit entries with filters (read-only)
func (r *Repository) List(ctx context.Context, filter ListEntriesFilter) ([]AuditEntry, int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argNum))
		args = append(args, filter.ActorID.String())
		argNum++
	}

	if filter.ActorType != nil {
		conditions = append(conditions, fmt.Sprintf("actor_type = $%d", argNum))
		args = append(args, *filter.ActorType)
		argNum++
	}

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action LIKE $%d", argNum))
		args = append(args, filter.Action+"%")
		argNum++
	}

	if filter.ResourceType != "" {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argNum))
		args = append(args, filter.ResourceType)
		argNum++
	}

	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", argNum))
		args = append(args, filter.ResourceID)
		argNum++
	}

	if filter.StartTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argNum))
		args = append(args, *filter.StartTime)
		argNum++
	}

	if filter.EndTime != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argNum))
		args = append(args, *filter.EndTime)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit.entries "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count audit entries")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM audit.entries
		%s
		ORDER BY sequence DESC
		LIMIT $%d OFFSET $%d`, entryColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list audit entries")
	}

	return entries, total, nil
}

// FindByID finds an audit entry by ID (read-only)
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*AuditEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM audit.entries WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("audit entry", id.String())
		}
		return nil, errors.Wrap(err, "failed to find audit entry")
	}
	return e, nil
}

// GetByResource gets the latest audit entries for a specific resource
func (r *Repository) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	entries, _, err := r.List(ctx, ListEntriesFilter{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        limit,
	})
	return entries, err
}

// VerifyChain verifies the most recent limit entries.
func (r *Repository) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM audit.entries
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit entries")
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to query audit entries")
	}

	return Verify(entries, includeDetails), nil
}
