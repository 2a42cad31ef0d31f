package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AnumHasan/django/internal/auth"
	jobmetrics "github.com/AnumHasan/django/internal/jobs"
)

const (
	// TaskTypePermissionWarmup pre-populates the permission cache for
	// active accounts.
	TaskTypePermissionWarmup = "authperm:warmup"
)

// PermissionWarmupPayload bounds how many accounts a single run touches.
type PermissionWarmupPayload struct {
	Limit int `json:"limit"`
}

// NewPermissionWarmupTask constructs an Asynq task for the cache warmup.
func NewPermissionWarmupTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(PermissionWarmupPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePermissionWarmup, body, asynq.Queue(QueueDefault)), nil
}

// PermissionWarmer loads (and thereby caches) a principal's full
// permission set.
type PermissionWarmer interface {
	AllPermissions(ctx context.Context, p auth.Principal, obj any) (auth.PermissionSet, error)
}

// PermissionWarmupJob walks active accounts and loads their permission
// sets through the cache so first requests after a flush hit Redis warm.
type PermissionWarmupJob struct {
	Pool    *pgxpool.Pool
	Warmer  PermissionWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPermissionWarmupJob wires dependencies for the warmup handler.
func NewPermissionWarmupJob(pool *pgxpool.Pool, warmer PermissionWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionWarmupJob {
	return &PermissionWarmupJob{
		Pool:    pool,
		Warmer:  warmer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTypePermissionWarmup tasks.
func (j *PermissionWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("permission warmup: handler not configured")
	}
	var payload PermissionWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	tracker := j.metrics().Track(TaskTypePermissionWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("limit", payload.Limit))
	logger.Info("starting permission warmup")

	if j.Warmer == nil {
		resultErr = errors.New("permission warmup: warmer not configured")
		return resultErr
	}

	start := j.now()
	users, err := j.fetchUsers(ctx, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("load active accounts", slog.Any("error", err))
		return resultErr
	}

	warmed := 0
	for i := range users {
		if _, err := j.Warmer.AllPermissions(ctx, &users[i], nil); err != nil {
			resultErr = err
			logger.Error("warm account", slog.Int64("user_id", users[i].ID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	j.metrics().AddWarmedUsers(warmed)
	logger.Info("completed permission warmup",
		slog.Int("accounts", warmed),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *PermissionWarmupJob) fetchUsers(ctx context.Context, limit int) ([]auth.User, error) {
	if j.Pool == nil {
		return nil, errors.New("permission warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT id, username, is_active, is_superuser
		FROM auth_user
		WHERE is_active
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]auth.User, 0)
	for rows.Next() {
		var user auth.User
		if err := rows.Scan(&user.ID, &user.Username, &user.IsActive, &user.IsSuperuser); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (j *PermissionWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypePermissionWarmup))
	}
	return slog.Default().With(slog.String("job", TaskTypePermissionWarmup))
}

func (j *PermissionWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PermissionWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
