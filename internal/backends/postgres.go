package backends

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AnumHasan/django/internal/auth"
)

// PGStore implements Store over PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store backed by the provided pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const userColumns = `id, username, first_name, last_name, email, password, is_staff, is_active, is_superuser, last_login, date_joined`

func scanUser(row pgx.Row) (*auth.User, error) {
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

// UserByUsername fetches a user by exact username.
func (s *PGStore) UserByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM auth_user WHERE username = $1`, username)
	return scanUser(row)
}

// UserByID fetches a user by ID.
func (s *PGStore) UserByID(ctx context.Context, id int64) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM auth_user WHERE id = $1`, id)
	return scanUser(row)
}

// PermissionByNaturalKey resolves a permission by (codename, app label, model).
func (s *PGStore) PermissionByNaturalKey(ctx context.Context, codename, appLabel, model string) (auth.Permission, error) {
	var perm auth.Permission
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.name, p.codename, ct.id, ct.app_label, ct.model
		FROM auth_permission p
		JOIN django_content_type ct ON ct.id = p.content_type_id
		WHERE p.codename = $1 AND ct.app_label = $2 AND ct.model = $3`,
		codename, appLabel, model,
	).Scan(&perm.ID, &perm.Name, &perm.Codename, &perm.ContentType.ID, &perm.ContentType.AppLabel, &perm.ContentType.Model)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Permission{}, ErrNotFound
		}
		return auth.Permission{}, err
	}
	return perm, nil
}

// GroupByName resolves a group by its unique name.
func (s *PGStore) GroupByName(ctx context.Context, name string) (auth.Group, error) {
	var group auth.Group
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM auth_group WHERE name = $1`, name).
		Scan(&group.ID, &group.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Group{}, ErrNotFound
		}
		return auth.Group{}, err
	}
	return group, nil
}

// UserPermissionStrings returns the permissions granted to the user directly.
func (s *PGStore) UserPermissionStrings(ctx context.Context, userID int64) ([]string, error) {
	return s.permStrings(ctx, `
		SELECT ct.app_label || '.' || p.codename
		FROM auth_user_user_permissions up
		JOIN auth_permission p ON p.id = up.permission_id
		JOIN django_content_type ct ON ct.id = p.content_type_id
		WHERE up.user_id = $1
		ORDER BY 1`, userID)
}

// GroupPermissionStrings returns the permissions the user holds through
// group membership.
func (s *PGStore) GroupPermissionStrings(ctx context.Context, userID int64) ([]string, error) {
	return s.permStrings(ctx, `
		SELECT DISTINCT ct.app_label || '.' || p.codename
		FROM auth_user_groups ug
		JOIN auth_group_permissions gp ON gp.group_id = ug.group_id
		JOIN auth_permission p ON p.id = gp.permission_id
		JOIN django_content_type ct ON ct.id = p.content_type_id
		WHERE ug.user_id = $1
		ORDER BY 1`, userID)
}

// AllPermissionStrings returns every permission in the store.
func (s *PGStore) AllPermissionStrings(ctx context.Context) ([]string, error) {
	return s.permStrings(ctx, `
		SELECT ct.app_label || '.' || p.codename
		FROM auth_permission p
		JOIN django_content_type ct ON ct.id = p.content_type_id
		ORDER BY 1`)
}

func (s *PGStore) permStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// UsersWithPerm returns the users granted a permission directly or through
// any group, subject to the filter.
func (s *PGStore) UsersWithPerm(ctx context.Context, filter WithPermFilter) ([]auth.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM auth_user u
		WHERE (
			EXISTS (
				SELECT 1
				FROM auth_user_user_permissions up
				JOIN auth_permission p ON p.id = up.permission_id
				JOIN django_content_type ct ON ct.id = p.content_type_id
				WHERE up.user_id = u.id AND p.codename = $1 AND ct.app_label = $2
			)
			OR EXISTS (
				SELECT 1
				FROM auth_user_groups ug
				JOIN auth_group_permissions gp ON gp.group_id = ug.group_id
				JOIN auth_permission p ON p.id = gp.permission_id
				JOIN django_content_type ct ON ct.id = p.content_type_id
				WHERE ug.user_id = u.id AND p.codename = $1 AND ct.app_label = $2
			)
			OR (u.is_superuser AND $3)
		)
		AND ($4::boolean IS NULL OR u.is_active = $4)
		ORDER BY u.id`,
		filter.Codename, filter.AppLabel, filter.IncludeSuperusers, filter.IsActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []auth.User{}
	for rows.Next() {
		user, err := scanUser(rows)
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

var _ Store = (*PGStore)(nil)
