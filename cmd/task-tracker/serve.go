package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matadcze/task-tracker/internal/api/handlers"
	"github.com/matadcze/task-tracker/internal/api/middleware"
	"github.com/matadcze/task-tracker/internal/api/openapi"
	"github.com/matadcze/task-tracker/internal/auth"
	"github.com/matadcze/task-tracker/internal/database"
	"github.com/matadcze/task-tracker/internal/server"
	"github.com/matadcze/task-tracker/internal/service"
)

var (
	serveSkipMigrations bool
	serveWithReminders  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveSkipMigrations, "skip-migrations", false, "не применять миграции при старте")
	serveCmd.Flags().BoolVar(&serveWithReminders, "with-reminders", false, "запустить планировщик напоминаний в процессе API")
}

func runServe(ctx context.Context) error {
	// 1. Конфигурация, миграции, PostgreSQL, метрики
	a, err := newApp(ctx, "serve", !serveSkipMigrations)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	// 1.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(a.pool)
	defer pgDB.Close()

	// 2. Хранилище вложений
	files, err := a.newFileStore()
	if err != nil {
		return err
	}

	// 3. Redis и блокировка входа (опционально)
	var loginLimiter service.LoginLimiter
	limiter, redisClient := a.newLoginLimiter()
	if limiter != nil {
		loginLimiter = limiter
		defer redisClient.Close()
	}

	// 4. Сервисы
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	tasksSvc := service.NewTaskService(a.store, service.NewTagService(), files, a.recorder, logger)
	if err := tasksSvc.InitMetrics(ctx); err != nil {
		logger.Warn("Не удалось инициализировать метрики задач", slog.String("error", err.Error()))
	}
	attachmentsSvc := service.NewAttachmentService(a.store, files, a.recorder, cfg.MaxUploadSizeBytes(), logger)
	userCache := service.NewUserCache(cfg.UserCacheSize, cfg.UserCacheTTL, a.recorder)
	authSvc := service.NewAuthService(a.store, tokens, loginLimiter, userCache, tasksSvc, a.recorder, logger)
	primary, safety := a.newChatInterpreters()
	chatSvc := service.NewChatService(tasksSvc, primary, safety, a.recorder, logger)
	auditSvc := service.NewAuditService(a.store, logger)

	// 5. topologymetrics — мониторинг PostgreSQL и LLM API
	var dependencies handlers.DependencyReporter
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "task-tracker",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		LLMBaseURL:    cfg.LLMBaseURL,
		LLMHealthPath: cfg.LLMHealthPath,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		dependencies = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 6. Readiness: PostgreSQL и хранилище критичны, Redis — нет
	checks := []handlers.ReadinessCheck{
		{Name: "postgresql", Checker: database.NewReadinessChecker(a.pool), Critical: true},
		{Name: "storage", Checker: files, Critical: true},
	}
	if limiter != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "redis", Checker: limiter})
	}
	healthHandler := handlers.NewHealthHandler(prometheus.DefaultGatherer, dependencies, checks...)

	// 7. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, handlers.Services{
		Auth:        authSvc,
		Tasks:       tasksSvc,
		Attachments: attachmentsSvc,
		Chat:        chatSvc,
		Audit:       auditSvc,
	}, cfg.MaxUploadSizeBytes(), openapi.Spec(), logger)

	// 8. Middleware: метрики, логирование, JWT, валидация по OpenAPI
	jwtAuth := middleware.NewJWTAuth(authSvc, logger)
	middlewares := []func(http.Handler) http.Handler{
		chimw.RealIP,
		middleware.NewHTTPMetrics(prometheus.DefaultRegisterer).Middleware(),
		middleware.RequestLogger(logger),
		server.AuthWithExclusions(jwtAuth.Middleware(), server.PublicPrefixes...),
	}
	if cfg.OpenAPIValidation {
		doc, err := openapi.Load()
		if err != nil {
			return fmt.Errorf("ошибка загрузки OpenAPI-контракта: %w", err)
		}
		validator, err := middleware.NewOpenAPIValidator(doc, logger)
		if err != nil {
			return fmt.Errorf("ошибка создания валидатора OpenAPI: %w", err)
		}
		middlewares = append(middlewares, validator.Middleware())
		logger.Info("Валидация запросов по OpenAPI включена")
	}

	// 9. Планировщик напоминаний в процессе API (опционально)
	var reminders *service.ReminderService
	if serveWithReminders {
		reminders = service.NewReminderService(a.store, a.recorder, cfg.ReminderInterval, cfg.ReminderWindowHours, logger)
		reminders.Start(ctx)
	}

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	runErr := srv.Run(ctx)

	// 11. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if reminders != nil {
		reminders.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Task Tracker остановлен")
	return nil
}
