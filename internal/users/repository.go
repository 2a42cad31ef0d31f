package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AnumHasan/django/internal/auth"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, first_name, last_name, email, password, is_staff, is_active, is_superuser, last_login, date_joined`

// CreateUser inserts a new account and returns its ID.
func (r *Repository) CreateUser(ctx context.Context, user *auth.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO auth_user (username, first_name, last_name, email, password, is_staff, is_active, is_superuser, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		user.Username, user.FirstName, user.LastName, user.Email, user.Password,
		user.IsStaff, user.IsActive, user.IsSuperuser, user.DateJoined,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user      auth.User
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.Email,
		&user.Password, &user.IsStaff, &user.IsActive, &user.IsSuperuser, &lastLogin, &user.DateJoined)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLogin = lastLogin.Time
	}
	return &user, nil
}

// UserByID fetches a user by ID.
func (r *Repository) UserByID(ctx context.Context, id int64) (*auth.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM auth_user WHERE id = $1`, id))
}

// UserByUsername fetches a user by exact username.
func (r *Repository) UserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM auth_user WHERE username = $1`, username))
}

// ListUsers returns all users ordered by ID.
func (r *Repository) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM auth_user ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []auth.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePassword stores a new encoded password hash.
func (r *Repository) UpdatePassword(ctx context.Context, userID int64, encoded string) error {
	return r.execOne(ctx, `UPDATE auth_user SET password = $2 WHERE id = $1`, userID, encoded)
}

// UpdateLastLogin stamps the last successful authentication.
func (r *Repository) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return r.execOne(ctx, `UPDATE auth_user SET last_login = $2 WHERE id = $1`, userID, at)
}

// SetActive toggles the active flag.
func (r *Repository) SetActive(ctx context.Context, userID int64, active bool) error {
	return r.execOne(ctx, `UPDATE auth_user SET is_active = $2 WHERE id = $1`, userID, active)
}

// DeleteUser removes the account. Grants and memberships cascade in the
// schema.
func (r *Repository) DeleteUser(ctx context.Context, userID int64) error {
	return r.execOne(ctx, `DELETE FROM auth_user WHERE id = $1`, userID)
}

// PermissionIDByString resolves a permission ID from its app label and
// codename.
func (r *Repository) PermissionIDByString(ctx context.Context, appLabel, codename string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT p.id
		FROM auth_permission p
		JOIN django_content_type ct ON ct.id = p.content_type_id
		WHERE ct.app_label = $1 AND p.codename = $2
		ORDER BY p.id
		LIMIT 1`,
		appLabel, codename,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// AttachPermission grants a permission directly to the user. Granting an
// already held permission is a no-op.
func (r *Repository) AttachPermission(ctx context.Context, userID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_user_user_permissions (user_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		userID, permissionID)
	return err
}

// DetachPermission removes a direct grant. Removing an absent grant is a
// no-op.
func (r *Repository) DetachPermission(ctx context.Context, userID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM auth_user_user_permissions
		WHERE user_id = $1 AND permission_id = $2`,
		userID, permissionID)
	return err
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
