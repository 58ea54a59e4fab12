package resource

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Store persists inventory items
type Store interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id types.ID) (*Item, error)
	List(ctx context.Context, filter ListFilter) ([]Item, int, error)
	ListAll(ctx context.Context) ([]Item, error)
	ListLowStock(ctx context.Context) ([]Item, error)
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id types.ID) error
}

// Repository provides database operations for resources
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new resource repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const selectColumns = `
	SELECT id, name, category, quantity, unit, min_threshold, location, expiry_date, created_at, updated_at
	FROM aid.resources`

func scanItem(row pgx.Row) (*Item, error) {
	item := &Item{}
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Quantity, &item.Unit,
		&item.MinThreshold, &item.Location, &item.ExpiryDate, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func collect(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan resource")
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate resources")
	}
	return items, nil
}

// Create inserts a resource
func (r *Repository) Create(ctx context.Context, item *Item) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO aid.resources (id, name, category, quantity, unit, min_threshold, location, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		item.ID, item.Name, item.Category, item.Quantity, item.Unit, item.MinThreshold, item.Location, item.ExpiryDate,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create resource")
	}
	return nil
}

// Get retrieves a resource by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("resource", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get resource")
	}
	return item, nil
}

// List lists resources with optional filters
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argNum))
		args = append(args, filter.Category)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR location ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM aid.resources "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count resources")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s %s ORDER BY category, name LIMIT $%d OFFSET $%d`, selectColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list resources")
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAll returns the whole inventory
func (r *Repository) ListAll(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY category, name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list resources")
	}
	return collect(rows)
}

// ListLowStock returns items at or below their minimum threshold
func (r *Repository) ListLowStock(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` WHERE quantity <= min_threshold ORDER BY quantity, name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list low stock resources")
	}
	return collect(rows)
}

// Update updates a resource
func (r *Repository) Update(ctx context.Context, item *Item) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE aid.resources SET
			name = $2, category = $3, quantity = $4, unit = $5,
			min_threshold = $6, location = $7, expiry_date = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		item.ID, item.Name, item.Category, item.Quantity, item.Unit, item.MinThreshold, item.Location, item.ExpiryDate,
	).Scan(&item.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("resource", item.ID.String())
	}
	if err != nil {
		return errors.Wrap(err, "failed to update resource")
	}
	return nil
}

// Delete removes a resource
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM aid.resources WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete resource")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("resource", id.String())
	}
	return nil
}
