// Пакет config — загрузка и валидация конфигурации Task Tracker
// из переменных окружения (и необязательного .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Task Tracker.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Валидация запросов по OpenAPI-контракту
	OpenAPIValidation bool

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений
	DBMaxConns int
	// Сколько ждать доступности PostgreSQL при старте
	DBConnectTimeout time.Duration

	// --- Redis (блокировка входа) ---

	// Адрес Redis (host:port). Пустое значение отключает блокировку.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- JWT ---

	// Секрет подписи HS256
	JWTSecret string
	// Issuer токенов
	JWTIssuer string
	// Время жизни access-токена
	AccessTokenTTL time.Duration
	// Время жизни refresh-токена
	RefreshTokenTTL time.Duration

	// --- Блокировка входа ---

	// Количество неудачных попыток до блокировки
	LoginMaxAttempts int
	// Окно подсчёта неудачных попыток
	LoginAttemptWindow time.Duration
	// Длительность блокировки
	LoginLockDuration time.Duration

	// --- Кэш пользователей ---

	UserCacheSize int
	UserCacheTTL  time.Duration

	// --- Вложения ---

	// Директория хранения вложений
	UploadDir string
	// Максимальный размер вложения в мегабайтах
	MaxUploadSizeMB int

	// --- Напоминания ---

	// Интервал запуска проверки напоминаний
	ReminderInterval time.Duration
	// Окно (в часах) для напоминаний DUE_SOON
	ReminderWindowHours int

	// --- Интерпретатор чата (LLM) ---

	// Базовый URL OpenAI-совместимого API. Пустое значение — только regex.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	// Модель модерации. Пустое значение отключает проверку безопасности.
	LLMModerationModel string
	LLMTimeout         time.Duration
	// Путь health endpoint LLM API для мониторинга зависимостей.
	// Пустое значение отключает мониторинг LLM.
	LLMHealthPath string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед чтением переменных подгружается .env (если файл существует);
// уже заданные переменные окружения не перезаписываются.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvDefault("TT_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// TT_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("TT_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("TT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TT_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TT_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("TT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.OpenAPIValidation, err = getEnvBool("TT_OPENAPI_VALIDATION", true)
	if err != nil {
		return nil, fmt.Errorf("TT_OPENAPI_VALIDATION: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("TT_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("TT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("TT_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("TT_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("TT_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("TT_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("TT_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("TT_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("TT_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("TT_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("TT_DB_MAX_CONNS: должно быть положительным, получено %d", cfg.DBMaxConns)
	}

	cfg.DBConnectTimeout, err = getEnvDuration("TT_DB_CONNECT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TT_DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("TT_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("TT_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("TT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("TT_REDIS_DB: %w", err)
	}

	// --- JWT ---

	// TT_JWT_SECRET — обязательный, не короче 32 байт
	cfg.JWTSecret, err = getEnvRequired("TT_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("TT_JWT_SECRET: длина секрета %d меньше минимальной 32", len(cfg.JWTSecret))
	}

	cfg.JWTIssuer = getEnvDefault("TT_JWT_ISSUER", "task-tracker")

	cfg.AccessTokenTTL, err = getEnvDuration("TT_ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TT_ACCESS_TOKEN_TTL: %w", err)
	}

	cfg.RefreshTokenTTL, err = getEnvDuration("TT_REFRESH_TOKEN_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("TT_REFRESH_TOKEN_TTL: %w", err)
	}
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return nil, fmt.Errorf("TT_REFRESH_TOKEN_TTL: должен быть больше TT_ACCESS_TOKEN_TTL (%s)", cfg.AccessTokenTTL)
	}

	// --- Блокировка входа ---

	cfg.LoginMaxAttempts, err = getEnvInt("TT_LOGIN_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("TT_LOGIN_MAX_ATTEMPTS: %w", err)
	}
	if cfg.LoginMaxAttempts < 1 {
		return nil, fmt.Errorf("TT_LOGIN_MAX_ATTEMPTS: значение %d должно быть положительным", cfg.LoginMaxAttempts)
	}

	cfg.LoginAttemptWindow, err = getEnvDuration("TT_LOGIN_ATTEMPT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TT_LOGIN_ATTEMPT_WINDOW: %w", err)
	}

	cfg.LoginLockDuration, err = getEnvDuration("TT_LOGIN_LOCK_DURATION", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TT_LOGIN_LOCK_DURATION: %w", err)
	}

	// --- Кэш пользователей ---

	cfg.UserCacheSize, err = getEnvInt("TT_USER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("TT_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 1 {
		return nil, fmt.Errorf("TT_USER_CACHE_SIZE: значение %d должно быть положительным", cfg.UserCacheSize)
	}

	cfg.UserCacheTTL, err = getEnvDuration("TT_USER_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TT_USER_CACHE_TTL: %w", err)
	}

	// --- Вложения ---

	cfg.UploadDir = getEnvDefault("TT_UPLOAD_DIR", "./uploads")

	cfg.MaxUploadSizeMB, err = getEnvInt("TT_MAX_UPLOAD_SIZE_MB", 10)
	if err != nil {
		return nil, fmt.Errorf("TT_MAX_UPLOAD_SIZE_MB: %w", err)
	}
	if cfg.MaxUploadSizeMB < 1 || cfg.MaxUploadSizeMB > 1024 {
		return nil, fmt.Errorf("TT_MAX_UPLOAD_SIZE_MB: значение %d вне допустимого диапазона 1-1024", cfg.MaxUploadSizeMB)
	}

	// --- Напоминания ---

	cfg.ReminderInterval, err = getEnvDuration("TT_REMINDER_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TT_REMINDER_INTERVAL: %w", err)
	}

	cfg.ReminderWindowHours, err = getEnvInt("TT_REMINDER_WINDOW_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("TT_REMINDER_WINDOW_HOURS: %w", err)
	}
	if cfg.ReminderWindowHours < 1 {
		return nil, fmt.Errorf("TT_REMINDER_WINDOW_HOURS: значение %d должно быть положительным", cfg.ReminderWindowHours)
	}

	// --- LLM ---

	cfg.LLMBaseURL = strings.TrimRight(getEnvDefault("TT_LLM_BASE_URL", ""), "/")
	if cfg.LLMBaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.LLMBaseURL); err != nil {
			return nil, fmt.Errorf("TT_LLM_BASE_URL: некорректный URL %q", cfg.LLMBaseURL)
		}
	}
	cfg.LLMAPIKey = getEnvDefault("TT_LLM_API_KEY", "")
	cfg.LLMModel = getEnvDefault("TT_LLM_MODEL", "gpt-4o-mini")
	cfg.LLMModerationModel = getEnvDefault("TT_LLM_MODERATION_MODEL", "")

	cfg.LLMTimeout, err = getEnvDuration("TT_LLM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TT_LLM_TIMEOUT: %w", err)
	}

	cfg.LLMHealthPath = getEnvDefault("TT_LLM_HEALTH_PATH", "")
	if cfg.LLMHealthPath != "" && !strings.HasPrefix(cfg.LLMHealthPath, "/") {
		return nil, fmt.Errorf("TT_LLM_HEALTH_PATH: путь должен начинаться с /")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("TT_DEPHEALTH_GROUP", "task-tracker")

	cfg.DephealthCheckInterval, err = getEnvDuration("TT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("TT_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TT_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// MaxUploadSizeBytes возвращает максимальный размер вложения в байтах.
func (c *Config) MaxUploadSizeBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadDotEnv подгружает переменные из .env. Отсутствие файла — не ошибка.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
