package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agriweather/internal/types"
)

// FarmRepository provides data access for the farms table.
type FarmRepository struct {
	db DBTX
}

// NewFarmRepository creates a FarmRepository backed by the given connection.
func NewFarmRepository(db DBTX) *FarmRepository {
	return &FarmRepository{db: db}
}

// farmColumns is the column list shared by every farm query. scanFarm reads
// them in this order.
const farmColumns = `f.id, f.owner_id, f.name, f.product, f.province, f.city, f.village,
	f.area_hectares, f.location_lat, f.location_lon, f.created_at, f.updated_at`

// farmCompleteExpr is true when every registration step has a value. It must
// agree with types.DeriveStatus.
const farmCompleteExpr = `(f.name <> '' AND f.product <> ''
	AND COALESCE(f.province, '') <> '' AND COALESCE(f.city, '') <> ''
	AND COALESCE(f.village, '') <> '' AND f.area_hectares IS NOT NULL
	AND f.location_lat IS NOT NULL)`

// scanFarm scans one row in farmColumns order and derives the status.
func scanFarm(row pgx.Row, extra ...any) (*types.Farm, error) {
	var f types.Farm
	var (
		province, city, village *string
		lat, lon                *float64
	)
	dest := []any{
		&f.ID,
		&f.OwnerID,
		&f.Name,
		&f.Product,
		&province,
		&city,
		&village,
		&f.AreaHectares,
		&lat,
		&lon,
		&f.CreatedAt,
		&f.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	f.Province = derefString(province)
	f.City = derefString(city)
	f.Village = derefString(village)
	if lat != nil && lon != nil {
		f.Location = &types.Coordinate{Lat: *lat, Lon: *lon}
	}
	f.Status = types.DeriveStatus(&f)
	return &f, nil
}

func locationArgs(c *types.Coordinate) (lat, lon *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Lat, &c.Lon
}

// Create validates and inserts a farm. An empty ID is assigned a new UUID.
// A second farm with the same name for the same owner is a conflict.
func (r *FarmRepository) Create(ctx context.Context, f *types.Farm) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	lat, lon := locationArgs(f.Location)

	row := r.db.QueryRow(ctx,
		`INSERT INTO farms (
			id, owner_id, name, product, province, city, village,
			area_hectares, location_lat, location_lon, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, COALESCE($11, NOW()), COALESCE($11, NOW())
		)
		RETURNING created_at, updated_at`,
		f.ID,
		f.OwnerID,
		f.Name,
		f.Product,
		nilIfEmpty(f.Province),
		nilIfEmpty(f.City),
		nilIfEmpty(f.Village),
		f.AreaHectares,
		lat,
		lon,
		nilIfZeroTime(f.CreatedAt),
	)
	if err := row.Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictFarmName,
				fmt.Sprintf("farm %q already exists for this owner", f.Name), nil,
				map[string]any{"field": "name"})
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create farm", err)
	}
	f.Status = types.DeriveStatus(f)
	return nil
}

// GetByID retrieves a farm. Returns not_found_farm if it does not exist.
func (r *FarmRepository) GetByID(ctx context.Context, id string) (*types.Farm, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+farmColumns+` FROM farms f WHERE f.id = $1`,
		id,
	)
	f, err := scanFarm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundFarm, "farm not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve farm", err)
	}
	return f, nil
}

// ListByOwner returns the owner's farms ordered by name.
func (r *FarmRepository) ListByOwner(ctx context.Context, ownerID string) ([]*types.Farm, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+farmColumns+` FROM farms f WHERE f.owner_id = $1 ORDER BY f.name`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list farms", err)
	}
	defer rows.Close()

	var farms []*types.Farm
	for rows.Next() {
		f, scanErr := scanFarm(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan farm row", scanErr)
		}
		farms = append(farms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating farm rows", err)
	}
	return farms, nil
}

// FarmFilter narrows ListWithOwners. Zero fields do not filter.
type FarmFilter struct {
	Product types.ProductType
	Located *bool
}

// ListWithOwners returns farms joined with their owners, ordered by farm ID
// so batch runs are deterministic.
func (r *FarmRepository) ListWithOwners(ctx context.Context, filter FarmFilter) ([]types.OwnedFarm, error) {
	var (
		where []string
		args  []any
	)
	if filter.Product != "" {
		args = append(args, filter.Product)
		where = append(where, fmt.Sprintf("f.product = $%d", len(args)))
	}
	if filter.Located != nil {
		if *filter.Located {
			where = append(where, "f.location_lat IS NOT NULL")
		} else {
			where = append(where, "f.location_lat IS NULL")
		}
	}

	query := `SELECT ` + farmColumns + `, ` + userColumns + `
		FROM farms f
		JOIN users u ON u.id = f.owner_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY f.id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list farms with owners", err)
	}
	defer rows.Close()

	var out []types.OwnedFarm
	for rows.Next() {
		owner, ownerDest := userScanTargets()
		f, scanErr := scanFarm(rows, ownerDest...)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan farm row", scanErr)
		}
		out = append(out, types.OwnedFarm{Farm: f, Owner: owner()})
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating farm rows", err)
	}
	return out, nil
}

// UpdateDetails overwrites the registration fields of a farm, leaving its
// location alone.
func (r *FarmRepository) UpdateDetails(ctx context.Context, f *types.Farm) error {
	if err := f.Validate(); err != nil {
		return err
	}
	row := r.db.QueryRow(ctx,
		`UPDATE farms SET
			name = $2, product = $3, province = $4, city = $5, village = $6,
			area_hectares = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		f.ID,
		f.Name,
		f.Product,
		nilIfEmpty(f.Province),
		nilIfEmpty(f.City),
		nilIfEmpty(f.Village),
		f.AreaHectares,
	)
	if err := row.Scan(&f.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return types.NewAppError(types.ErrCodeNotFoundFarm, "farm not found", nil)
		case isUniqueViolation(err):
			return types.NewAppErrorWithDetails(types.ErrCodeConflictFarmName,
				fmt.Sprintf("farm %q already exists for this owner", f.Name), nil,
				map[string]any{"field": "name"})
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update farm", err)
	}
	f.Status = types.DeriveStatus(f)
	return nil
}

// SetLocation registers the farm's coordinate and returns the updated farm.
func (r *FarmRepository) SetLocation(ctx context.Context, id string, c types.Coordinate) (*types.Farm, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return r.updateLocation(ctx, id, &c)
}

// UnsetLocation clears the farm's coordinate. The farm no longer receives
// reports until a new location is registered.
func (r *FarmRepository) UnsetLocation(ctx context.Context, id string) (*types.Farm, error) {
	return r.updateLocation(ctx, id, nil)
}

func (r *FarmRepository) updateLocation(ctx context.Context, id string, c *types.Coordinate) (*types.Farm, error) {
	lat, lon := locationArgs(c)
	row := r.db.QueryRow(ctx,
		`UPDATE farms f SET location_lat = $2, location_lon = $3, updated_at = NOW()
		WHERE f.id = $1
		RETURNING `+farmColumns,
		id, lat, lon,
	)
	f, err := scanFarm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundFarm, "farm not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update farm location", err)
	}
	return f, nil
}

// Stats aggregates user and farm counts for operators.
func (r *FarmRepository) Stats(ctx context.Context) (*types.FarmStats, error) {
	stats := &types.FarmStats{
		ByStatus:  map[string]int{},
		ByProduct: map[string]int{},
	}

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE blocked),
			COUNT(*) FILTER (WHERE sms_opt_out)
		FROM users`,
	).Scan(&stats.Users, &stats.BlockedUsers, &stats.OptedOutUsers)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count users", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT f.product, `+farmCompleteExpr+`, f.location_lat IS NOT NULL, COUNT(*)
		FROM farms f
		GROUP BY 1, 2, 3`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count farms", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			product  string
			complete bool
			located  bool
			n        int
		)
		if err := rows.Scan(&product, &complete, &located, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan farm counts", err)
		}
		stats.Farms += n
		stats.ByProduct[product] += n
		if complete {
			stats.ByStatus[string(types.FarmComplete)] += n
		} else {
			stats.ByStatus[string(types.FarmIncomplete)] += n
		}
		if located {
			stats.LocatedFarms += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating farm counts", err)
	}
	return stats, nil
}
