package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/api/internal/notify"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/api/internal/tasks"
	"municipal-complaint-service/shared/clients/chat"
	"municipal-complaint-service/shared/config"
	"municipal-complaint-service/shared/dbx"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/metricsx"
	"municipal-complaint-service/shared/observability"
	"municipal-complaint-service/shared/workflow"
)

func main() {
	cfg, problems := config.Load("worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	metricsx.Register()

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	complaintsRepo := repos.NewComplaintsRepo(dbPool)
	usersRepo := repos.NewUsersRepo(dbPool)

	lineClient := chat.NewLineClient(cfg.LineAPIURL, cfg.LineChannelToken, 10*time.Second)
	facebookClient := chat.NewFacebookClient(cfg.FacebookAPIURL, cfg.FacebookPageToken, 10*time.Second)
	dispatcher := notify.NewDispatcher(lineClient, facebookClient, nil, notify.Config{
		OversightGroupID: cfg.OversightGroupID,
		OfficerWebURL:    cfg.OfficerWebURL,
		SurveyBaseURL:    cfg.SurveyBaseURL,
	}, logger)

	redisOpt := tasks.RedisOpt(cfg)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSurveySend, func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("asynq").Start(ctx, "survey.send")
		span.SetAttributes(attribute.String("queue", cfg.AsynqQueue))
		defer span.End()

		var payload tasks.SurveyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		complaintID, err := uuid.Parse(strings.TrimSpace(payload.ComplaintID))
		if err != nil {
			return err
		}
		c, err := complaintsRepo.GetByID(ctx, complaintID)
		if err != nil {
			return err
		}
		// The complaint may have been reopened by a transfer between the
		// close and the scheduled send.
		if !workflow.IsTerminal(c.Status) || c.Status == workflow.StatusWaiting {
			logger.Info(ctx, "survey_skipped", "complaint no longer surveyable",
				slog.String("ref_id", c.RefID),
				slog.String("status", c.Status),
			)
			return nil
		}
		user, err := usersRepo.GetByID(ctx, c.UserID)
		if err != nil {
			return err
		}
		dispatcher.PushCitizen(ctx, user, dispatcher.SurveyText(c))
		return nil
	})
	mux.HandleFunc(tasks.TypeNotifyPush, func(ctx context.Context, t *asynq.Task) error {
		var payload tasks.NotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		switch payload.Platform {
		case models.PlatformLine:
			return lineClient.PushText(ctx, payload.RecipientID, payload.Text)
		case models.PlatformFacebook:
			return facebookClient.PushText(ctx, payload.RecipientID, payload.Text)
		default:
			logger.Warn(ctx, "notify_platform_unknown", "push dropped",
				slog.String("platform", payload.Platform),
			)
			return nil
		}
	})

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "notification worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "worker_stop", "notification worker stopped")
}
