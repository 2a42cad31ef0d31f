// Package users implements account management: creation, password changes,
// login bookkeeping and transactional email. Permission resolution lives in
// the auth package; this service owns the write side.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/AnumHasan/django/internal/auth"
	"github.com/AnumHasan/django/jobs"
)

var (
	// ErrNotFound indicates that the requested user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrUsernameTaken indicates a username collision on create.
	ErrUsernameTaken = errors.New("users: username already taken")
	// ErrNoEmail indicates the user has no address to deliver to.
	ErrNoEmail = errors.New("users: user has no email address")
	// ErrSuperuserNotStaff rejects a superuser created with is_staff stripped.
	ErrSuperuserNotStaff = errors.New("users: superuser must have is_staff=true")
	// ErrSuperuserNotSuperuser rejects a superuser created with the flag stripped.
	ErrSuperuserNotSuperuser = errors.New("users: superuser must have is_superuser=true")
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	CreateUser(ctx context.Context, user *auth.User) (int64, error)
	UserByID(ctx context.Context, id int64) (*auth.User, error)
	UserByUsername(ctx context.Context, username string) (*auth.User, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
	UpdatePassword(ctx context.Context, userID int64, encoded string) error
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
	SetActive(ctx context.Context, userID int64, active bool) error
	DeleteUser(ctx context.Context, userID int64) error
	PermissionIDByString(ctx context.Context, appLabel, codename string) (int64, error)
	AttachPermission(ctx context.Context, userID, permissionID int64) error
	DetachPermission(ctx context.Context, userID, permissionID int64) error
}

// Flusher invalidates cached permission sets after grants change.
type Flusher interface {
	Flush(ctx context.Context, userIDs ...int64) error
}

// Outbox queues transactional mail for asynchronous delivery.
type Outbox interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Service handles user business logic.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	validate *validator.Validate
	flusher  Flusher
	outbox   Outbox
	now      func() time.Time
}

// NewService builds a Service instance. flusher and outbox may be nil when
// caching or mail delivery is not wired.
func NewService(logger *slog.Logger, repo RepositoryPort, flusher Flusher, outbox Outbox) *Service {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return auth.ValidUsername(fl.Field().String())
	})
	return &Service{
		logger:   logger,
		repo:     repo,
		validate: v,
		flusher:  flusher,
		outbox:   outbox,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateUserInput collects the fields accepted on account creation. The
// pointer flags distinguish an explicit override from an omitted value.
type CreateUserInput struct {
	Username    string `validate:"required,username"`
	Email       string `validate:"omitempty,email,max=254"`
	Password    string `validate:"required,min=8"`
	FirstName   string `validate:"max=150"`
	LastName    string `validate:"max=150"`
	IsStaff     *bool
	IsActive    *bool
	IsSuperuser *bool
}

// CreateUser creates a regular account. Staff and superuser flags default to
// false; an explicit override is honored.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*auth.User, error) {
	return s.createUser(ctx, input, false, false)
}

// CreateSuperuser creates an account with both staff and superuser flags. An
// explicit override stripping either flag is rejected.
func (s *Service) CreateSuperuser(ctx context.Context, input CreateUserInput) (*auth.User, error) {
	if input.IsStaff != nil && !*input.IsStaff {
		return nil, ErrSuperuserNotStaff
	}
	if input.IsSuperuser != nil && !*input.IsSuperuser {
		return nil, ErrSuperuserNotSuperuser
	}
	return s.createUser(ctx, input, true, true)
}

func (s *Service) createUser(ctx context.Context, input CreateUserInput, defaultStaff, defaultSuperuser bool) (*auth.User, error) {
	input.Username = auth.NormalizeUsername(strings.TrimSpace(input.Username))
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("users: validate: %w", err)
	}
	user := &auth.User{
		Username:    input.Username,
		Email:       input.Email,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		IsStaff:     boolOr(input.IsStaff, defaultStaff),
		IsActive:    boolOr(input.IsActive, true),
		IsSuperuser: boolOr(input.IsSuperuser, defaultSuperuser),
		DateJoined:  s.now(),
	}
	if err := user.SetPassword(input.Password); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id
	s.logger.Info("user created",
		slog.Int64("user_id", id),
		slog.String("username", user.Username),
		slog.Bool("is_superuser", user.IsSuperuser),
	)
	return user, nil
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (*auth.User, error) {
	return s.repo.UserByID(ctx, id)
}

// GetByUsername fetches a user by username, normalizing the lookup key the
// same way account creation does.
func (s *Service) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.repo.UserByUsername(ctx, auth.NormalizeUsername(strings.TrimSpace(username)))
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]auth.User, error) {
	return s.repo.ListUsers(ctx)
}

// ChangePassword rehashes and stores a new password for the user.
func (s *Service) ChangePassword(ctx context.Context, userID int64, raw string) error {
	if err := s.validate.Var(raw, "required,min=8"); err != nil {
		return fmt.Errorf("users: validate password: %w", err)
	}
	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.SetPassword(raw); err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, user.Password); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.Int64("user_id", user.ID))
	return nil
}

// RecordLogin stamps a successful authentication on the account.
func (s *Service) RecordLogin(ctx context.Context, userID int64) (time.Time, error) {
	at := s.now()
	if err := s.repo.UpdateLastLogin(ctx, userID, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// SetActive toggles the active flag and drops the user's cached permissions.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) error {
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return err
	}
	s.flush(ctx, userID)
	s.logger.Info("user active flag updated", slog.Int64("user_id", userID), slog.Bool("active", active))
	return nil
}

// Delete removes the account and its cached permissions.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.flush(ctx, userID)
	s.logger.Info("user deleted", slog.Int64("user_id", userID))
	return nil
}

// GrantPermission attaches a direct permission grant, by permission string.
func (s *Service) GrantPermission(ctx context.Context, userID int64, perm string) error {
	permissionID, err := s.resolvePermission(ctx, perm)
	if err != nil {
		return err
	}
	if err := s.repo.AttachPermission(ctx, userID, permissionID); err != nil {
		return err
	}
	s.flush(ctx, userID)
	s.logger.Info("permission granted", slog.Int64("user_id", userID), slog.String("permission", perm))
	return nil
}

// RevokePermission removes a direct permission grant, by permission string.
func (s *Service) RevokePermission(ctx context.Context, userID int64, perm string) error {
	permissionID, err := s.resolvePermission(ctx, perm)
	if err != nil {
		return err
	}
	if err := s.repo.DetachPermission(ctx, userID, permissionID); err != nil {
		return err
	}
	s.flush(ctx, userID)
	s.logger.Info("permission revoked", slog.Int64("user_id", userID), slog.String("permission", perm))
	return nil
}

// EmailUser queues a transactional email to the user's address.
func (s *Service) EmailUser(ctx context.Context, userID int64, subject, body string) error {
	if s.outbox == nil {
		return errors.New("users: mail outbox not configured")
	}
	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return ErrNoEmail
	}
	info, err := s.outbox.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      user.Email,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return err
	}
	s.logger.Info("email queued",
		slog.Int64("user_id", user.ID),
		slog.String("task_id", info.ID),
	)
	return nil
}

func (s *Service) resolvePermission(ctx context.Context, perm string) (int64, error) {
	appLabel, codename, err := auth.SplitPermission(perm)
	if err != nil {
		return 0, err
	}
	return s.repo.PermissionIDByString(ctx, appLabel, codename)
}

func (s *Service) flush(ctx context.Context, userID int64) {
	if s.flusher == nil {
		return
	}
	if err := s.flusher.Flush(ctx, userID); err != nil {
		s.logger.Warn("permission cache flush failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// normalizeEmail lowercases the domain part only; the local part stays case
// sensitive.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
