package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/AnumHasan/django/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Mailer delivers a single message. The SMTP client in
// internal/platform/mail implements it.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SendEmailJob delivers queued transactional emails.
type SendEmailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSendEmailJob wires dependencies for the mail handler.
func NewSendEmailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	return &SendEmailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		// Retrying cannot conjure an address.
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeSendEmail)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("to", payload.To))
	if j.Mailer == nil {
		resultErr = errors.New("send email: mailer not configured")
		return resultErr
	}
	if err := j.Mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		resultErr = err
		logger.Error("send email", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddEmailSent(1)
	logger.Info("email sent", slog.String("subject", payload.Subject))
	return resultErr
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeSendEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeSendEmail))
}

func (j *SendEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
