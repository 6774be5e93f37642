// Пакет config — загрузка и валидация конфигурации snapdrop
// из переменных окружения (с опциональным .env файлом).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Типы backend-а хранения.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Списки расширений по умолчанию (как в историческом allow-list).
var (
	defaultImageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff"}
	defaultVideoExtensions = []string{"mp4", "avi", "mov", "wmv", "flv", "webm", "mkv", "3gp"}
)

// Config содержит все параметры конфигурации snapdrop.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория загрузок (здесь же лежит metadata.json)
	UploadsDir string
	// Выбранный backend хранения байтов: local или s3
	Backend string
	// Максимальный размер одного файла в байтах
	MaxFileSize int64
	// Допустимые расширения изображений (без точки)
	ImageExtensions []string
	// Допустимые расширения видео (без точки)
	VideoExtensions []string
	// Таймаут одной операции backend-а (put/get/delete)
	BackendTimeout time.Duration

	// Параметры объектного хранилища (используются при Backend = s3)
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
	S3KeyPrefix       string
	S3PublicBaseURL   string

	// Пароль администратора
	AdminPassword string
	// Секрет подписи сессионных токенов администратора (HS256)
	SessionSecret string
	// Время жизни сессии администратора
	SessionTTL time.Duration

	// Интервал фоновой проверки целостности (0 — отключена)
	IntegrityInterval time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Разрешённые CORS origin-ы
	CORSOrigins []string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (объектного хранилища) в метриках topologymetrics
	DephealthDepName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед чтением переменных подгружается .env файл (путь — SD_ENV_FILE,
// по умолчанию ".env"); отсутствие файла не является ошибкой.
func Load() (*Config, error) {
	envFile := getEnvDefault("SD_ENV_FILE", ".env")
	_ = godotenv.Load(envFile)

	cfg := &Config{}
	var err error

	// SD_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SD_UPLOADS_DIR — обязательный
	cfg.UploadsDir, err = getEnvRequired("SD_UPLOADS_DIR")
	if err != nil {
		return nil, err
	}

	// SD_BACKEND — backend хранения (по умолчанию local)
	cfg.Backend = getEnvDefault("SD_BACKEND", BackendLocal)
	if cfg.Backend != BackendLocal && cfg.Backend != BackendS3 {
		return nil, fmt.Errorf("SD_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.Backend)
	}

	// SD_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 3 GB)
	cfg.MaxFileSize, err = getEnvInt64("SD_MAX_FILE_SIZE", 3<<30)
	if err != nil {
		return nil, fmt.Errorf("SD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("SD_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// SD_IMAGE_EXTENSIONS, SD_VIDEO_EXTENSIONS — allow-list расширений
	cfg.ImageExtensions = getEnvList("SD_IMAGE_EXTENSIONS", defaultImageExtensions)
	cfg.VideoExtensions = getEnvList("SD_VIDEO_EXTENSIONS", defaultVideoExtensions)
	if len(cfg.ImageExtensions)+len(cfg.VideoExtensions) == 0 {
		return nil, fmt.Errorf("allow-list расширений пуст: задайте SD_IMAGE_EXTENSIONS и/или SD_VIDEO_EXTENSIONS")
	}

	// SD_BACKEND_TIMEOUT — таймаут операции backend-а (по умолчанию 5m)
	cfg.BackendTimeout, err = getEnvDuration("SD_BACKEND_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SD_BACKEND_TIMEOUT: %w", err)
	}

	// Параметры объектного хранилища — обязательны только при SD_BACKEND=s3
	cfg.S3Bucket = getEnvDefault("SD_S3_BUCKET", "")
	cfg.S3Region = getEnvDefault("SD_S3_REGION", "us-east-1")
	cfg.S3AccessKeyID = getEnvDefault("SD_S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvDefault("SD_S3_SECRET_ACCESS_KEY", "")
	cfg.S3Endpoint = getEnvDefault("SD_S3_ENDPOINT", "")
	cfg.S3KeyPrefix = getEnvDefault("SD_S3_KEY_PREFIX", "snap-drop-uploads")
	cfg.S3PublicBaseURL = getEnvDefault("SD_S3_PUBLIC_BASE_URL", "")

	if cfg.Backend == BackendS3 {
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("SD_S3_BUCKET: обязателен при SD_BACKEND=s3")
		}
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("SD_S3_ACCESS_KEY_ID/SD_S3_SECRET_ACCESS_KEY: обязательны при SD_BACKEND=s3")
		}
	}

	// SD_ADMIN_PASSWORD — обязательный
	cfg.AdminPassword, err = getEnvRequired("SD_ADMIN_PASSWORD")
	if err != nil {
		return nil, err
	}

	// SD_SESSION_SECRET — обязательный
	cfg.SessionSecret, err = getEnvRequired("SD_SESSION_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.SessionSecret) < 16 {
		return nil, fmt.Errorf("SD_SESSION_SECRET: длина должна быть не меньше 16 символов")
	}

	// SD_SESSION_TTL — время жизни сессии (по умолчанию 1h)
	cfg.SessionTTL, err = getEnvDuration("SD_SESSION_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SD_SESSION_TTL: %w", err)
	}

	// SD_INTEGRITY_INTERVAL — интервал проверки целостности (по умолчанию 6h)
	cfg.IntegrityInterval, err = getEnvDuration("SD_INTEGRITY_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SD_INTEGRITY_INTERVAL: %w", err)
	}

	// SD_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SD_LOG_LEVEL: %w", err)
	}

	// SD_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// SD_CORS_ORIGINS — разрешённые origin-ы (по умолчанию *)
	cfg.CORSOrigins = getEnvList("SD_CORS_ORIGINS", []string{"*"})

	// SD_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SD_SHUTDOWN_TIMEOUT: %w", err)
	}

	// SD_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("SD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// SD_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("SD_DEPHEALTH_GROUP", "snapdrop")

	// SD_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics
	cfg.DephealthDepName = getEnvDefault("SD_DEPHEALTH_DEP_NAME", "object-store")

	return cfg, nil
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvList возвращает список значений из comma-separated переменной окружения.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
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
