// Точка входа snapdrop — сервиса анонимной загрузки фото и видео.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/snapdrop/internal/api/handlers"
	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/server"
	"github.com/bigkaa/snapdrop/internal/service"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("snapdrop запускается",
		slog.String("version", config.Version),
		slog.String("backend", cfg.Backend),
		slog.Int("port", cfg.Port),
	)

	// --- Инициализация компонентов ---

	// 1. Backend хранения байтов
	be, err := newBackend(cfg)
	if err != nil {
		logger.Error("Ошибка инициализации backend-а", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Документ метаданных. Лежит в uploads root независимо от
	// backend-а файлов: журнал — локальная ответственность сервиса
	if err := os.MkdirAll(cfg.UploadsDir, 0o750); err != nil {
		logger.Error("Ошибка создания uploads root", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store, err := metastore.Open(cfg.UploadsDir, logger)
	if err != nil {
		logger.Error("Ошибка загрузки документа метаданных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Документ метаданных загружен",
		slog.String("path", store.Path()),
		slog.Int("records", store.Count()),
	)

	// Gauge-метрики файлов из документа
	service.RecountMetrics(store)

	// 3. Сервисы
	allocator := service.NewPathAllocator(be, logger)
	coordinator := service.NewUploadCoordinator(cfg, be, store, allocator, logger)
	retrieval := service.NewRetrievalService(cfg, be, store, logger)
	deletion := service.NewDeletionService(cfg, be, store, logger)

	// 4. Фоновые процессы
	ctx := context.Background()

	// 4.1 Проверка целостности
	localDir := ""
	if cfg.Backend == config.BackendLocal {
		localDir = cfg.UploadsDir
	}
	integritySvc := service.NewIntegrityService(be, store, localDir, cfg.IntegrityInterval, logger)
	integritySvc.Start(ctx)

	// 4.2 topologymetrics — мониторинг объектного хранилища
	var dephealthSvc *service.DephealthService
	if s3be, ok := be.(*backend.S3); ok {
		var dephealthErr error
		dephealthSvc, dephealthErr = service.NewDephealthService(
			"snapdrop",
			cfg.DephealthGroup,
			cfg.DephealthDepName,
			s3be.EndpointURL(),
			cfg.DephealthCheckInterval,
			logger,
		)
		if dephealthErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dephealthErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("endpoint", s3be.EndpointURL()),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 5. Middleware сессии администратора
	auth := middleware.NewAdminAuth(cfg.AdminPassword, cfg.SessionSecret, cfg.SessionTTL, logger)

	// 6. Handlers
	h := server.Handlers{
		Upload: handlers.NewUploadHandler(coordinator, cfg.MaxFileSize),
		Serve:  handlers.NewServeHandler(retrieval),
		Admin:  handlers.NewAdminHandler(cfg, auth, store, deletion, integritySvc, logger),
		Health: handlers.NewHealthHandler(cfg.UploadsDir),
		Auth:   auth,
	}

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	integritySvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("snapdrop остановлен")
}

// newBackend создаёт backend хранения по конфигурации.
func newBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return backend.NewS3(backend.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			KeyPrefix:       cfg.S3KeyPrefix,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
	default:
		return backend.NewLocal(cfg.UploadsDir)
	}
}
