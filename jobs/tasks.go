package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stratus-cloud/stratus/internal/notify"
	"github.com/stratus-cloud/stratus/internal/user"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional mail.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeInvitationSweep is the task type for the periodic expiry
	// sweep of the invitation ledger.
	TaskTypeInvitationSweep = "invitation:sweep"
)

// SendEmailPayload describes one outbound message. Either To or UserID
// must be set; with UserID the worker resolves the address at delivery
// time so stale addresses never stick in the queue.
type SendEmailPayload struct {
	To      string `json:"to,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// UsersPort resolves recipient addresses for user-addressed mail.
type UsersPort interface {
	FindByID(ctx context.Context, id int64) (user.User, error)
}

// NewSendEmailHandler builds the mail:send handler around the notifier.
func NewSendEmailHandler(notifier notify.Notifier, users UsersPort, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		to := payload.To
		if to == "" && payload.UserID != 0 {
			u, err := users.FindByID(ctx, payload.UserID)
			if errors.Is(err, user.ErrNotFound) {
				logger.Warn("drop mail for missing user", slog.Int64("user_id", payload.UserID))
				return asynq.SkipRetry
			}
			if err != nil {
				return err
			}
			to = u.Email
		}
		if to == "" {
			return asynq.SkipRetry
		}
		return notifier.Send(ctx, payload.Subject, payload.Body, to)
	}
}

// Sweeper bulk-deletes expired invitations.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// NewInvitationSweepTask constructs the periodic sweep task.
func NewInvitationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeInvitationSweep, nil)
}

// NewInvitationSweepHandler builds the invitation:sweep handler.
func NewInvitationSweepHandler(sweeper Sweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		swept, err := sweeper.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if swept > 0 {
			logger.Info("swept expired invitations", slog.Int64("count", swept))
		}
		return nil
	}
}
