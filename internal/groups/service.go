// Package groups manages named permission bundles and their memberships.
// A user in a group holds every permission granted to the group; resolution
// happens through the auth backend chain, this service owns the write side.
package groups

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/AnumHasan/django/internal/auth"
)

var (
	// ErrNotFound indicates that the requested group does not exist.
	ErrNotFound = errors.New("groups: not found")
	// ErrNameTaken indicates a group name collision.
	ErrNameTaken = errors.New("groups: name already taken")
	// ErrNameRequired indicates an empty group name.
	ErrNameRequired = errors.New("groups: name required")
)

// maxNameLength bounds group names, matching the schema column.
const maxNameLength = 150

// RepositoryPort defines data access methods for groups. WithTx hands fn a
// transaction-scoped port; multi-statement writes go through it.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error

	CreateGroup(ctx context.Context, name string) (auth.Group, error)
	RenameGroup(ctx context.Context, id int64, name string) (auth.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	GroupByID(ctx context.Context, id int64) (auth.Group, error)
	GroupByName(ctx context.Context, name string) (auth.Group, error)
	ListGroups(ctx context.Context) ([]auth.Group, error)

	GroupPermissionIDs(ctx context.Context, groupID int64) ([]int64, error)
	AttachPermission(ctx context.Context, groupID, permissionID int64) error
	DetachPermission(ctx context.Context, groupID, permissionID int64) error
	PermissionIDByString(ctx context.Context, appLabel, codename string) (int64, error)

	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

// Flusher invalidates cached permission sets after grants change.
type Flusher interface {
	Flush(ctx context.Context, userIDs ...int64) error
}

// Service handles group business logic.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	flusher Flusher
}

// NewService builds a Service instance. flusher may be nil when caching is
// not wired.
func NewService(logger *slog.Logger, repo RepositoryPort, flusher Flusher) *Service {
	return &Service{logger: logger, repo: repo, flusher: flusher}
}

// Create inserts a new group.
func (s *Service) Create(ctx context.Context, name string) (auth.Group, error) {
	name, err := cleanName(name)
	if err != nil {
		return auth.Group{}, err
	}
	group, err := s.repo.CreateGroup(ctx, name)
	if err != nil {
		return auth.Group{}, err
	}
	s.logger.Info("group created", slog.Int64("group_id", group.ID), slog.String("name", group.Name))
	return group, nil
}

// Rename changes a group's unique name.
func (s *Service) Rename(ctx context.Context, id int64, name string) (auth.Group, error) {
	name, err := cleanName(name)
	if err != nil {
		return auth.Group{}, err
	}
	group, err := s.repo.RenameGroup(ctx, id, name)
	if err != nil {
		return auth.Group{}, err
	}
	s.logger.Info("group renamed", slog.Int64("group_id", id), slog.String("name", name))
	return group, nil
}

// Delete removes a group. Cached permissions of its members are dropped.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var members []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		memberIDs, err := repo.MemberIDs(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteGroup(ctx, id); err != nil {
			return err
		}
		members = memberIDs
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, members)
	s.logger.Info("group deleted", slog.Int64("group_id", id), slog.Int("members", len(members)))
	return nil
}

// Get fetches a group by ID.
func (s *Service) Get(ctx context.Context, id int64) (auth.Group, error) {
	return s.repo.GroupByID(ctx, id)
}

// GetByName fetches a group by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (auth.Group, error) {
	return s.repo.GroupByName(ctx, strings.TrimSpace(name))
}

// List returns all groups.
func (s *Service) List(ctx context.Context) ([]auth.Group, error) {
	return s.repo.ListGroups(ctx)
}

// SetPermissions replaces the group's grants with the given permission
// strings: missing grants are attached, grants not in the new set are
// detached, the rest stay untouched. The diff lands in one transaction so a
// resolver never observes a half-replaced set.
func (s *Service) SetPermissions(ctx context.Context, groupID int64, perms []string) error {
	var members []int64
	var granted int
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		wanted := make(map[int64]struct{}, len(perms))
		for _, perm := range perms {
			appLabel, codename, err := auth.SplitPermission(perm)
			if err != nil {
				return err
			}
			id, err := repo.PermissionIDByString(ctx, appLabel, codename)
			if err != nil {
				return err
			}
			wanted[id] = struct{}{}
		}

		current, err := repo.GroupPermissionIDs(ctx, groupID)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{}, len(current))
		for _, id := range current {
			existing[id] = struct{}{}
		}

		for id := range wanted {
			if _, ok := existing[id]; !ok {
				if err := repo.AttachPermission(ctx, groupID, id); err != nil {
					return err
				}
			}
		}
		for id := range existing {
			if _, ok := wanted[id]; !ok {
				if err := repo.DetachPermission(ctx, groupID, id); err != nil {
					return err
				}
			}
		}

		memberIDs, err := repo.MemberIDs(ctx, groupID)
		if err != nil {
			return err
		}
		members = memberIDs
		granted = len(wanted)
		return nil
	})
	if err != nil {
		return err
	}
	s.flush(ctx, members)
	s.logger.Info("group permissions replaced",
		slog.Int64("group_id", groupID),
		slog.Int("permissions", granted),
		slog.Int("members_flushed", len(members)),
	)
	return nil
}

// AddUser puts a user into the group.
func (s *Service) AddUser(ctx context.Context, groupID, userID int64) error {
	if err := s.repo.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.flush(ctx, []int64{userID})
	s.logger.Info("group member added", slog.Int64("group_id", groupID), slog.Int64("user_id", userID))
	return nil
}

// RemoveUser takes a user out of the group.
func (s *Service) RemoveUser(ctx context.Context, groupID, userID int64) error {
	if err := s.repo.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.flush(ctx, []int64{userID})
	s.logger.Info("group member removed", slog.Int64("group_id", groupID), slog.Int64("user_id", userID))
	return nil
}

// Members returns the user IDs in the group.
func (s *Service) Members(ctx context.Context, groupID int64) ([]int64, error) {
	return s.repo.MemberIDs(ctx, groupID)
}

func (s *Service) flush(ctx context.Context, userIDs []int64) {
	if s.flusher == nil || len(userIDs) == 0 {
		return
	}
	if err := s.flusher.Flush(ctx, userIDs...); err != nil {
		s.logger.Warn("permission cache flush failed", slog.Int("users", len(userIDs)), slog.Any("error", err))
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if len([]rune(name)) > maxNameLength {
		return "", errors.New("groups: name too long")
	}
	return name, nil
}
