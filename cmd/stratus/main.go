package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stratus-cloud/stratus/internal/account"
	"github.com/stratus-cloud/stratus/internal/app"
	"github.com/stratus-cloud/stratus/internal/audit"
	"github.com/stratus-cloud/stratus/internal/auth"
	"github.com/stratus-cloud/stratus/internal/invitation"
	"github.com/stratus-cloud/stratus/internal/notify"
	"github.com/stratus-cloud/stratus/internal/observability"
	"github.com/stratus-cloud/stratus/internal/platform/cache"
	"github.com/stratus-cloud/stratus/internal/platform/db"
	"github.com/stratus-cloud/stratus/internal/rights"
	"github.com/stratus-cloud/stratus/internal/session"
	"github.com/stratus-cloud/stratus/internal/user"
	"github.com/stratus-cloud/stratus/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessions := session.NewStore(redisClient, cfg.SessionTTL)
	recorder := audit.NewRecorder(pool)
	hasher := user.BcryptHasher{}
	notifier := notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	userRepo := user.NewRepository(pool)
	userService, err := user.NewService(userRepo, hasher, recorder, logger)
	if err != nil {
		logger.Error("init user service", slog.Any("error", err))
		os.Exit(1)
	}

	accountRepo := account.NewRepository(pool)
	accountService, err := account.NewService(accountRepo, recorder, logger)
	if err != nil {
		logger.Error("init account service", slog.Any("error", err))
		os.Exit(1)
	}

	rightsRepo := rights.NewRepository(pool)
	rightsService, err := rights.NewService(rightsRepo, recorder, queue, logger)
	if err != nil {
		logger.Error("init rights service", slog.Any("error", err))
		os.Exit(1)
	}

	codegen, err := invitation.NewCodeGenerator(cfg.InviteCodeMode)
	if err != nil {
		logger.Error("init code generator", slog.Any("error", err))
		os.Exit(1)
	}
	invitationRepo := invitation.NewRepository(pool)
	invitationService, err := invitation.NewService(invitationRepo, codegen, notifier, accountRepo, userRepo, hasher, recorder, logger, invitation.Config{
		BaseURL:  cfg.AppBaseURL,
		Validity: cfg.InviteValidity,
	})
	if err != nil {
		logger.Error("init invitation service", slog.Any("error", err))
		os.Exit(1)
	}
	invitationService.ObserveEvents(metrics.ObserveInvitation)

	userService.Guard().Observe(metrics.ObserveDecision)
	accountService.Guard().Observe(metrics.ObserveDecision)
	rightsService.Guard().Observe(metrics.ObserveDecision)
	invitationService.Guard().Observe(metrics.ObserveDecision)

	authService := auth.NewService(userRepo, hasher)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Sessions:          sessions,
		Metrics:           metrics,
		AuthHandler:       auth.NewHandler(logger, authService, sessions),
		UserHandler:       user.NewHandler(logger, userService),
		AccountHandler:    account.NewHandler(logger, accountService),
		RightsHandler:     rights.NewHandler(logger, rightsService),
		InvitationHandler: invitation.NewHandler(logger, invitationService),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
