package family

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Store is the persistence contract used by the HTTP handler and by the
// scoring and insight services.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id types.ID) (*Record, error)
	GetMany(ctx context.Context, ids []types.ID) ([]Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	ListActive(ctx context.Context) ([]Record, error)
	Update(ctx context.Context, rec *Record) error
	Deactivate(ctx context.Context, id types.ID) error
}

// Repository provides database operations for families
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new family repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const selectColumns = `
	SELECT id, code, phone, member_count, child_count, elderly_count, disabled_count,
		monthly_income, housing_type, social_status, social_situation,
		health_conditions, migration_status, last_aid_distribution_date,
		active, created_at, updated_at
	FROM aid.families`

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(
		&rec.ID, &rec.Code, &rec.Phone, &rec.MemberCount, &rec.ChildCount, &rec.ElderlyCount, &rec.DisabledCount,
		&rec.MonthlyIncome, &rec.HousingType, &rec.SocialStatus, &rec.SocialSituation,
		&rec.HealthConditions, &rec.MigrationStatus, &rec.LastAidDate,
		&rec.Active, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

func collect(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan family")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate families")
	}
	return records, nil
}

// Create inserts a new family
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO aid.families (
			id, code, phone, member_count, child_count, elderly_count, disabled_count,
			monthly_income, housing_type, social_status, social_situation,
			health_conditions, migration_status, last_aid_distribution_date, active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		) RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.Code, rec.Phone, rec.MemberCount, rec.ChildCount, rec.ElderlyCount, rec.DisabledCount,
		rec.MonthlyIncome, rec.HousingType, rec.SocialStatus, rec.SocialSituation,
		rec.HealthConditions, rec.MigrationStatus, rec.LastAidDate, rec.Active,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("family with this code already exists")
		}
		return errors.Wrap(err, "failed to create family")
	}

	return nil
}

// Get retrieves a family by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("family", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get family")
	}
	return rec, nil
}

// Exists returns a NotFound error when the family is unknown
func (r *Repository) Exists(ctx context.Context, id types.ID) error {
	var found bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM aid.families WHERE id = $1)`, id).Scan(&found); err != nil {
		return errors.Wrap(err, "failed to check family")
	}
	if !found {
		return errors.NotFound("family", id.String())
	}
	return nil
}

// GetMany retrieves the families with the given IDs. Unknown IDs are ignored;
// the result follows the order of ids.
func (r *Repository) GetMany(ctx context.Context, ids []types.ID) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	rows, err := r.pool.Query(ctx, selectColumns+` WHERE id = ANY($1::uuid[])`, raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get families")
	}
	found, err := collect(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[types.ID]Record, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}
	ordered := make([]Record, 0, len(found))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered, nil
}

// List lists families with optional filters
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR social_situation ILIKE $%d OR phone ILIKE $%d)", argNum, argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM aid.families "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count families")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		selectColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list families")
	}
	records, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListActive returns every active family, oldest first.
func (r *Repository) ListActive(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` WHERE active = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active families")
	}
	return collect(rows)
}

// Update updates a family
func (r *Repository) Update(ctx context.Context, rec *Record) error {
	query := `
		UPDATE aid.families SET
			phone = $2, member_count = $3, child_count = $4, elderly_count = $5, disabled_count = $6,
			monthly_income = $7, housing_type = $8, social_status = $9, social_situation = $10,
			health_conditions = $11, migration_status = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.Phone, rec.MemberCount, rec.ChildCount, rec.ElderlyCount, rec.DisabledCount,
		rec.MonthlyIncome, rec.HousingType, rec.SocialStatus, rec.SocialSituation,
		rec.HealthConditions, rec.MigrationStatus,
	).Scan(&rec.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("family", rec.ID.String())
	}
	if err != nil {
		return errors.Wrap(err, "failed to update family")
	}
	return nil
}

// Deactivate soft-deletes a family
func (r *Repository) Deactivate(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `UPDATE aid.families SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate family")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("family", id.String())
	}
	return nil
}

// TouchLastAid advances the family's last aid distribution date to at. It
// runs inside the caller's transaction and never moves the date backwards.
func TouchLastAid(ctx context.Context, tx pgx.Tx, id types.ID, at time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE aid.families
		SET last_aid_distribution_date = GREATEST(COALESCE(last_aid_distribution_date, $2), $2),
			updated_at = NOW()
		WHERE id = $1`, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to update last aid date")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("family", id.String())
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
