package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"municipal-complaint-service/api/internal/classify"
	"municipal-complaint-service/api/internal/handlers"
	"municipal-complaint-service/api/internal/intake"
	"municipal-complaint-service/api/internal/lifecycle"
	"municipal-complaint-service/api/internal/middleware"
	"municipal-complaint-service/api/internal/notify"
	"municipal-complaint-service/api/internal/repos"
	"municipal-complaint-service/api/internal/tasks"
	"municipal-complaint-service/api/internal/token"
	"municipal-complaint-service/shared/cachex"
	"municipal-complaint-service/shared/clients/chat"
	"municipal-complaint-service/shared/clients/llm"
	"municipal-complaint-service/shared/config"
	"municipal-complaint-service/shared/dbx"
	"municipal-complaint-service/shared/httpx"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/metricsx"
	"municipal-complaint-service/shared/mqx"
	"municipal-complaint-service/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.TokenSecret == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "TOKEN_SECRET", Message: "TOKEN_SECRET is required"})
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	cache, err := cachex.New(cfg)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "REDIS_ADDR", Message: "failed to connect to redis"})
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
	}

	if cfg.OtelEnabled {
		shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Warn(context.Background(), "otel_init_failed", "tracing disabled", logx.Err(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracer(ctx)
			}()
		}
	}

	metricsx.Register()

	complaintsRepo := repos.NewComplaintsRepo(dbPool)
	departmentsRepo := repos.NewDepartmentsRepo(dbPool)
	correctionsRepo := repos.NewCorrectionsRepo(dbPool)
	usersRepo := repos.NewUsersRepo(dbPool)
	officersRepo := repos.NewOfficersRepo(dbPool)

	if dbPool != nil {
		seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := departmentsRepo.SeedDefaults(seedCtx); err != nil {
			logger.Warn(seedCtx, "department_seed_failed", "default departments not seeded", logx.Err(err))
		}
		cancel()
	}

	llmTimeout := time.Duration(cfg.LLMTimeoutMS) * time.Millisecond
	primary := llm.NewProvider("primary", cfg.LLMPrimaryURL, cfg.LLMPrimaryKey, cfg.LLMPrimaryModel, llmTimeout, cfg.LLMMaxTokens)
	var fallback *llm.Provider
	if cfg.LLMFallbackURL != "" {
		fallback = llm.NewProvider("fallback", cfg.LLMFallbackURL, cfg.LLMFallbackKey, cfg.LLMFallbackModel, llmTimeout, cfg.LLMMaxTokens)
	}
	model := llm.NewClient(primary, fallback)

	lineClient := chat.NewLineClient(cfg.LineAPIURL, cfg.LineChannelToken, 10*time.Second)
	facebookClient := chat.NewFacebookClient(cfg.FacebookAPIURL, cfg.FacebookPageToken, 10*time.Second)

	taskClient := tasks.NewClient(cfg)
	defer taskClient.Close()

	var producer *mqx.Producer
	if cfg.KafkaEnabled {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "lifecycle events will not be mirrored", logx.Err(err))
		} else {
			defer producer.Close()
		}
	}

	classifier := classify.New(model, departmentsRepo, correctionsRepo, logger)
	dispatcher := notify.NewDispatcher(lineClient, facebookClient, taskClient, notify.Config{
		OversightGroupID: cfg.OversightGroupID,
		OfficerWebURL:    cfg.OfficerWebURL,
		SurveyBaseURL:    cfg.SurveyBaseURL,
		SurveyDelay:      time.Duration(cfg.SurveyDelaySec) * time.Second,
	}, logger)

	var publisher lifecycle.Publisher
	if producer != nil {
		publisher = producer
	}
	svc := lifecycle.NewService(complaintsRepo, departmentsRepo, usersRepo, officersRepo, classifier, dispatcher, publisher, logger)

	var sessions intake.Store = intake.NewMemoryStore()
	var locker intake.Locker = intake.NopLocker{}
	if cache != nil {
		sessions = intake.NewRedisStore(cache, time.Duration(cfg.SessionTTLHour)*time.Hour)
		locker = intake.NewRedisLocker(cache.Client(), time.Duration(cfg.TurnLockSec)*time.Second)
	}
	media := handlers.NewMediaResolver(lineClient, cfg.MediaDir, cfg.MediaBaseURL)
	engine := intake.NewEngine(sessions, model, svc, complaintsRepo, media, locker, logger)

	tokens := token.New(cfg.TokenSecret, time.Duration(cfg.TokenTTLMin)*time.Minute, cache)

	h := handlers.New(handlers.Config{
		LineChannelSecret:   cfg.LineChannelSecret,
		FacebookVerifyToken: cfg.FacebookVerifyToken,
	}, svc, engine, complaintsRepo, officersRepo, usersRepo, departmentsRepo, tokens, lineClient, facebookClient, logger)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", metricsx.Handler())
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaDir))))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"},
			)
			return
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				httpx.WriteError(
					w,
					r,
					http.StatusServiceUnavailable,
					"FAILED_PRECONDITION",
					"service not ready: redis unavailable",
					map[string]any{"problem": "redis_ping_failed"},
				)
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DBRequiredMiddleware{
		Pool: dbPool,
		Skip: func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
		},
	}.Wrap(handler)
	handler = middleware.AuthMiddleware{
		Tokens: tokens,
		Skip:   handlers.PublicPath,
	}.Wrap(handler)
	handler = middleware.RateLimitMiddleware{
		Limiter: middleware.NewIPRateLimiter(10, 30, 2*time.Minute),
		Skip: func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/webhook/")
		},
	}.Wrap(handler)
	handler = middleware.CORSMiddleware{}.Wrap(handler)
	handler = metricsx.Instrument(handler)
	if cfg.OtelEnabled {
		handler = otelhttp.NewHandler(handler, "http.server")
	}
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if cache != nil {
		_ = cache.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
