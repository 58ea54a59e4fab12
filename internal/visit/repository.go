package visit

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Store persists visits and the aid distributed during them
type Store interface {
	Create(ctx context.Context, v *Visit) error
	Get(ctx context.Context, id types.ID) (*Visit, error)
	List(ctx context.Context, filter ListFilter) ([]Visit, int, error)
	Delete(ctx context.Context, id types.ID) error
	ListAids(ctx context.Context, limit, offset int) ([]AidView, int, error)
}

// Repository provides database operations for visits
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new visit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Create stores the visit, its family links and aids in one transaction and
// advances each family's last aid distribution date.
func (r *Repository) Create(ctx context.Context, v *Visit) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO aid.visits (id, worker_id, notes, visited_at)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			v.ID, v.WorkerID, v.Notes, v.VisitedAt,
		).Scan(&v.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "failed to create visit")
		}

		for _, b := range v.Families {
			_, err := tx.Exec(ctx, `
				INSERT INTO aid.visit_families (id, visit_id, family_id)
				VALUES ($1, $2, $3)`,
				b.ID, v.ID, b.FamilyID,
			)
			if isForeignKeyViolation(err) {
				return errors.NotFound("family", b.FamilyID.String())
			}
			if err != nil {
				return errors.Wrap(err, "failed to link family to visit")
			}

			for _, a := range b.Aids {
				_, err := tx.Exec(ctx, `
					INSERT INTO aid.aids (id, visit_family_id, type, nature, recurring,
						estimated_value, quantity, unit, distributed_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					a.ID, b.ID, a.Type, a.Nature, a.Recurring,
					a.EstimatedValue, a.Quantity, a.Unit, a.DistributedAt,
				)
				if err != nil {
					return errors.Wrap(err, "failed to record aid")
				}
			}

			if latest, ok := b.LatestDistribution(); ok {
				if err := family.TouchLastAid(ctx, tx, b.FamilyID, latest); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.Wrap(err, "failed to create visit")
	}
	return nil
}

// Get retrieves a visit with its families and aids
func (r *Repository) Get(ctx context.Context, id types.ID) (*Visit, error) {
	v := &Visit{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, worker_id, notes, visited_at, created_at
		FROM aid.visits WHERE id = $1`, id,
	).Scan(&v.ID, &v.WorkerID, &v.Notes, &v.VisitedAt, &v.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("visit", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get visit")
	}

	families, err := r.loadFamilies(ctx, []types.ID{v.ID})
	if err != nil {
		return nil, err
	}
	v.Families = families[v.ID]
	if v.Families == nil {
		v.Families = []Beneficiary{}
	}
	return v, nil
}

// List lists visits, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Visit, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.FamilyID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM aid.visit_families vf WHERE vf.visit_id = v.id AND vf.family_id = $%d)", argNum))
		args = append(args, *filter.FamilyID)
		argNum++
	}

	if filter.WorkerID != nil {
		conditions = append(conditions, fmt.Sprintf("v.worker_id = $%d", argNum))
		args = append(args, *filter.WorkerID)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM aid.visits v "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count visits")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT v.id, v.worker_id, v.notes, v.visited_at, v.created_at
		FROM aid.visits v
		%s
		ORDER BY v.visited_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list visits")
	}
	defer rows.Close()

	var visits []Visit
	var ids []types.ID
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.WorkerID, &v.Notes, &v.VisitedAt, &v.CreatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan visit")
		}
		visits = append(visits, v)
		ids = append(ids, v.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate visits")
	}

	families, err := r.loadFamilies(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range visits {
		visits[i].Families = families[visits[i].ID]
		if visits[i].Families == nil {
			visits[i].Families = []Beneficiary{}
		}
	}
	return visits, total, nil
}

// loadFamilies returns the beneficiaries and aids of the given visits, keyed
// by visit ID.
func (r *Repository) loadFamilies(ctx context.Context, visitIDs []types.ID) (map[types.ID][]Beneficiary, error) {
	out := make(map[types.ID][]Beneficiary, len(visitIDs))
	if len(visitIDs) == 0 {
		return out, nil
	}
	raw := make([]string, len(visitIDs))
	for i, id := range visitIDs {
		raw[i] = id.String()
	}

	rows, err := r.pool.Query(ctx, `
		SELECT vf.visit_id, vf.id, vf.family_id,
			a.id, a.type, a.nature, a.recurring, a.estimated_value, a.quantity, a.unit, a.distributed_at
		FROM aid.visit_families vf
		LEFT JOIN aid.aids a ON a.visit_family_id = vf.id
		WHERE vf.visit_id = ANY($1::uuid[])
		ORDER BY vf.id, a.distributed_at`, raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load visit families")
	}
	defer rows.Close()

	index := map[types.ID]int{}
	for rows.Next() {
		var (
			visitID, linkID, familyID types.ID
			aidID                     *types.ID
			aidType, nature, unit     *string
			recurring                 *bool
			quantity                  *float64
			distributedAt             *time.Time
			aid                       Aid
		)
		if err := rows.Scan(&visitID, &linkID, &familyID,
			&aidID, &aidType, &nature, &recurring, &aid.EstimatedValue, &quantity, &unit, &distributedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan visit family")
		}

		pos, ok := index[linkID]
		if !ok {
			out[visitID] = append(out[visitID], Beneficiary{ID: linkID, FamilyID: familyID, Aids: []Aid{}})
			pos = len(out[visitID]) - 1
			index[linkID] = pos
		}
		if aidID == nil {
			continue
		}
		aid.ID = *aidID
		aid.Type = deref(aidType)
		aid.Nature = deref(nature)
		aid.Unit = deref(unit)
		if recurring != nil {
			aid.Recurring = *recurring
		}
		if quantity != nil {
			aid.Quantity = *quantity
		}
		if distributedAt != nil {
			aid.DistributedAt = *distributedAt
		}
		out[visitID][pos].Aids = append(out[visitID][pos].Aids, aid)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate visit families")
	}
	return out, nil
}

// Delete removes a visit; links and aids cascade. Family aid dates are left
// untouched since the aid was physically handed out.
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM aid.visits WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete visit")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("visit", id.String())
	}
	return nil
}

// ListAids returns the aid log, most recent distribution first
func (r *Repository) ListAids(ctx context.Context, limit, offset int) ([]AidView, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM aid.aids`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count aids")
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.type, a.nature, a.recurring, a.estimated_value, a.quantity, a.unit, a.distributed_at,
			vf.visit_id, vf.family_id, v.worker_id
		FROM aid.aids a
		JOIN aid.visit_families vf ON vf.id = a.visit_family_id
		JOIN aid.visits v ON v.id = vf.visit_id
		ORDER BY a.distributed_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list aids")
	}
	defer rows.Close()

	var aids []AidView
	for rows.Next() {
		var a AidView
		if err := rows.Scan(&a.ID, &a.Type, &a.Nature, &a.Recurring, &a.EstimatedValue, &a.Quantity, &a.Unit,
			&a.DistributedAt, &a.VisitID, &a.FamilyID, &a.WorkerID); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan aid")
		}
		aids = append(aids, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate aids")
	}
	return aids, total, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23503"
}
