package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AnumHasan/django/internal/auth"
	"github.com/AnumHasan/django/internal/platform/db"
)

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn against a transaction-scoped repository. Grant diffs span
// several statements and must land atomically.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

// CreateGroup inserts a new group.
func (r *Repository) CreateGroup(ctx context.Context, name string) (auth.Group, error) {
	var group auth.Group
	err := r.db.QueryRow(ctx, `INSERT INTO auth_group (name) VALUES ($1) RETURNING id, name`, name).
		Scan(&group.ID, &group.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return auth.Group{}, ErrNameTaken
		}
		return auth.Group{}, err
	}
	return group, nil
}

// RenameGroup changes a group's name.
func (r *Repository) RenameGroup(ctx context.Context, id int64, name string) (auth.Group, error) {
	var group auth.Group
	err := r.db.QueryRow(ctx, `UPDATE auth_group SET name = $2 WHERE id = $1 RETURNING id, name`, id, name).
		Scan(&group.ID, &group.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Group{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return auth.Group{}, ErrNameTaken
		}
		return auth.Group{}, err
	}
	return group, nil
}

// DeleteGroup removes a group. Grants and memberships cascade in the schema.
func (r *Repository) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_group WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GroupByID fetches a group by ID.
func (r *Repository) GroupByID(ctx context.Context, id int64) (auth.Group, error) {
	return r.scanGroup(r.db.QueryRow(ctx, `SELECT id, name FROM auth_group WHERE id = $1`, id))
}

// GroupByName fetches a group by its unique name.
func (r *Repository) GroupByName(ctx context.Context, name string) (auth.Group, error) {
	return r.scanGroup(r.db.QueryRow(ctx, `SELECT id, name FROM auth_group WHERE name = $1`, name))
}

func (r *Repository) scanGroup(row pgx.Row) (auth.Group, error) {
	var group auth.Group
	if err := row.Scan(&group.ID, &group.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Group{}, ErrNotFound
		}
		return auth.Group{}, err
	}
	return group, nil
}

// ListGroups returns all groups ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]auth.Group, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM auth_group ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []auth.Group
	for rows.Next() {
		var group auth.Group
		if err := rows.Scan(&group.ID, &group.Name); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupPermissionIDs returns the IDs of the group's granted permissions.
func (r *Repository) GroupPermissionIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return r.idList(ctx, `SELECT permission_id FROM auth_group_permissions WHERE group_id = $1 ORDER BY permission_id`, groupID)
}

// AttachPermission grants a permission to the group. Granting an already
// held permission is a no-op.
func (r *Repository) AttachPermission(ctx context.Context, groupID, permissionID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_group_permissions (group_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		groupID, permissionID)
	return err
}

// DetachPermission removes a grant from the group.
func (r *Repository) DetachPermission(ctx context.Context, groupID, permissionID int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM auth_group_permissions
		WHERE group_id = $1 AND permission_id = $2`,
		groupID, permissionID)
	return err
}

// PermissionIDByString resolves a permission ID from its app label and
// codename.
func (r *Repository) PermissionIDByString(ctx context.Context, appLabel, codename string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
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

// AddMember puts a user into the group. Adding an existing member is a
// no-op.
func (r *Repository) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_user_groups (user_id, group_id)
		VALUES ($2, $1)
		ON CONFLICT DO NOTHING`,
		groupID, userID)
	return err
}

// RemoveMember takes a user out of the group.
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM auth_user_groups
		WHERE group_id = $1 AND user_id = $2`,
		groupID, userID)
	return err
}

// MemberIDs returns the user IDs in the group.
func (r *Repository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return r.idList(ctx, `SELECT user_id FROM auth_user_groups WHERE group_id = $1 ORDER BY user_id`, groupID)
}

func (r *Repository) idList(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

var _ RepositoryPort = (*Repository)(nil)
