// Точка входа snapdrop-migrate — утилиты миграции плоской раскладки
// хранилища в каталоги сессий загрузки.
//
// Использование:
//
//	snapdrop-migrate           # выполнить миграцию
//	snapdrop-migrate -dry-run  # показать план без изменений
//
// Конфигурация — те же переменные окружения, что у сервиса snapdrop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/migrate"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "показать план миграции без изменений")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Миграция раскладки хранилища",
		slog.String("version", config.Version),
		slog.String("backend", cfg.Backend),
		slog.Bool("dry_run", *dryRun),
	)

	be, err := newBackend(cfg)
	if err != nil {
		logger.Error("Ошибка инициализации backend-а", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := metastore.Open(cfg.UploadsDir, logger)
	if err != nil {
		logger.Error("Ошибка загрузки документа метаданных", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// SIGINT/SIGTERM прерывают обход; уже перемещённые записи
	// фиксируются в документе
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := migrate.New(be, store, logger).Run(ctx, *dryRun)
	if err != nil {
		logger.Error("Миграция завершилась с ошибкой", slog.String("error", err.Error()))
		if report == nil {
			os.Exit(1)
		}
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if err != nil || len(report.Failed) > 0 {
		os.Exit(1)
	}
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
