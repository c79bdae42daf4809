package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/matadcze/task-tracker/internal/auth"
	"github.com/matadcze/task-tracker/internal/config"
	"github.com/matadcze/task-tracker/internal/database"
	"github.com/matadcze/task-tracker/internal/llm"
	"github.com/matadcze/task-tracker/internal/metrics"
	"github.com/matadcze/task-tracker/internal/repository"
	"github.com/matadcze/task-tracker/internal/service"
	"github.com/matadcze/task-tracker/internal/storage/filestore"
)

// app — общие зависимости подкоманд.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	store    repository.Store
	recorder *metrics.Recorder
}

// loadConfig загружает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}

// newApp загружает конфигурацию, при необходимости применяет миграции
// и подключается к PostgreSQL.
func newApp(ctx context.Context, component string, migrate bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger.Info("Task Tracker запускается",
		slog.String("command", component),
		slog.String("version", config.Version),
	)

	if migrate {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, fmt.Errorf("ошибка миграций БД: %w", err)
		}
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		store:    repository.NewStore(pool),
		recorder: metrics.New(prometheus.DefaultRegisterer),
	}, nil
}

// Close освобождает ресурсы.
func (a *app) Close() {
	a.pool.Close()
}

// newLoginLimiter создаёт блокировку входа на Redis.
// Без TT_REDIS_ADDR возвращает nil: блокировка отключена.
func (a *app) newLoginLimiter() (*auth.LoginLimiter, *redis.Client) {
	if a.cfg.RedisAddr == "" {
		a.logger.Warn("TT_REDIS_ADDR не задан, блокировка входа отключена")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	a.logger.Info("Redis клиент создан", slog.String("addr", a.cfg.RedisAddr))
	return auth.NewLoginLimiter(client, a.cfg.LoginMaxAttempts, a.cfg.LoginAttemptWindow, a.cfg.LoginLockDuration), client
}

// newChatInterpreters создаёт LLM-интерпретатор и проверку безопасности.
// Без TT_LLM_BASE_URL чат работает только на regex-интерпретаторе.
func (a *app) newChatInterpreters() (service.Interpreter, service.SafetyChecker) {
	if a.cfg.LLMBaseURL == "" {
		a.logger.Info("TT_LLM_BASE_URL не задан, чат использует только regex-интерпретатор")
		return nil, nil
	}

	client := llm.New(a.cfg.LLMBaseURL, a.cfg.LLMAPIKey, a.cfg.LLMTimeout, a.logger)
	var primary service.Interpreter = llm.NewInterpreter(client, a.cfg.LLMModel, a.logger)

	var safety service.SafetyChecker
	if a.cfg.LLMModerationModel != "" {
		safety = llm.NewModerationChecker(client, a.cfg.LLMModerationModel, a.logger)
	}
	a.logger.Info("LLM-интерпретатор чата включён",
		slog.String("base_url", client.BaseURL()),
		slog.String("model", a.cfg.LLMModel),
		slog.Bool("moderation", safety != nil),
	)
	return primary, safety
}

// newFileStore открывает хранилище вложений.
func (a *app) newFileStore() (*filestore.FileStore, error) {
	files, err := filestore.New(a.cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища вложений: %w", err)
	}
	return files, nil
}
