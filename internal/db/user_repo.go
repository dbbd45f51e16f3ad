package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agriweather/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given connection.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns is the column list shared by user queries.
const userColumns = `u.id, u.name, u.phone_number, u.blocked, u.sms_opt_out, u.created_at`

// userScanTargets returns scan destinations in userColumns order and a
// function that builds the user once the row is scanned. It lets joined
// queries append the user columns to another entity's scan.
func userScanTargets() (func() *types.User, []any) {
	var (
		u     types.User
		phone *string
	)
	dest := []any{&u.ID, &u.Name, &phone, &u.Blocked, &u.SMSOptOut, &u.CreatedAt}
	return func() *types.User {
		u.Phone = derefString(phone)
		return &u
	}, dest
}

func scanUser(row pgx.Row) (*types.User, error) {
	build, dest := userScanTargets()
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return build(), nil
}

// Create inserts a user. An empty ID is assigned a new UUID. Phone numbers
// are unique.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, name, phone_number, blocked, sms_opt_out, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING created_at`,
		u.ID,
		u.Name,
		nilIfEmpty(u.Phone),
		u.Blocked,
		u.SMSOptOut,
		nilIfZeroTime(u.CreatedAt),
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictPhone, "phone number already registered", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user. Returns not_found_user if it does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// SetBlocked marks a user as blocked or unblocked. Blocked users receive no
// messages.
func (r *UserRepository) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.setFlag(ctx, `UPDATE users SET blocked = $2 WHERE id = $1`, id, blocked)
}

// SetSMSOptOut records the user's STOP/START choice.
func (r *UserRepository) SetSMSOptOut(ctx context.Context, id string, optOut bool) error {
	return r.setFlag(ctx, `UPDATE users SET sms_opt_out = $2 WHERE id = $1`, id, optOut)
}

func (r *UserRepository) setFlag(ctx context.Context, query, id string, value bool) error {
	tag, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// ListWithoutFarms returns users who registered but never added a farm.
func (r *UserRepository) ListWithoutFarms(ctx context.Context) ([]*types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		FROM users u
		WHERE NOT EXISTS (SELECT 1 FROM farms f WHERE f.owner_id = u.id)
		ORDER BY u.id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users without farms", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", scanErr)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}
	return users, nil
}
