package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stratus-cloud/stratus/internal/app"
	"github.com/stratus-cloud/stratus/internal/invitation"
	jobmetrics "github.com/stratus-cloud/stratus/internal/jobs"
	"github.com/stratus-cloud/stratus/internal/notify"
	"github.com/stratus-cloud/stratus/internal/platform/db"
	"github.com/stratus-cloud/stratus/internal/user"
	"github.com/stratus-cloud/stratus/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	notifier := notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	hasher := user.BcryptHasher{}
	userRepo := user.NewRepository(pool)

	codegen, err := invitation.NewCodeGenerator(cfg.InviteCodeMode)
	if err != nil {
		logger.Error("init code generator", slog.Any("error", err))
		os.Exit(1)
	}
	// The worker only sweeps; it never authorizes, notifies, or audits
	// on behalf of a caller.
	sweeper, err := invitation.NewService(invitation.NewRepository(pool), codegen, noopNotifier{}, nil, userRepo, hasher, nil, logger, invitation.Config{
		BaseURL:  cfg.AppBaseURL,
		Validity: cfg.InviteValidity,
	})
	if err != nil {
		logger.Error("init invitation service", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: metrics.Wrap("send_email", jobs.NewSendEmailHandler(notifier, userRepo, logger))},
			{Type: jobs.TaskTypeInvitationSweep, Handler: metrics.Wrap("invitation_sweep", jobs.NewInvitationSweepHandler(sweeper, logger))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewInvitationSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, subject, body, to string) error {
	return nil
}
