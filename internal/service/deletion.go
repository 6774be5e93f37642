// deletion.go — сервис удаления файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

// DeletionService удаляет файлы: сначала байты, затем запись метаданных.
type DeletionService struct {
	cfg     *config.Config
	backend backend.Backend
	store   *metastore.Store
	logger  *slog.Logger
}

// NewDeletionService создаёт сервис удаления файлов.
func NewDeletionService(cfg *config.Config, b backend.Backend, store *metastore.Store, logger *slog.Logger) *DeletionService {
	return &DeletionService{
		cfg:     cfg,
		backend: b,
		store:   store,
		logger:  logger.With(slog.String("component", "deletion_service")),
	}
}

// Delete удаляет файл по id. ErrNotFound — записи нет.
//
// Порядок: сначала байты, затем запись. Ошибка удаления байтов
// логируется, но запись удаляется в любом случае: документ метаданных
// первичен, осиротевшие байты найдёт проверка целостности.
func (s *DeletionService) Delete(ctx context.Context, id string) error {
	rec := s.store.Get(id)
	if rec == nil {
		middleware.OperationsTotal.WithLabelValues("delete", "not_found").Inc()
		return ErrNotFound
	}

	delCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	if err := s.backend.Delete(delCtx, rec.FullPath); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			s.logger.Warn("Байты файла уже отсутствуют, удаляется только запись",
				slog.String("id", id),
				slog.String("path", rec.FullPath),
			)
		} else {
			s.logger.Error("Ошибка удаления байтов, запись всё равно удаляется",
				slog.String("id", id),
				slog.String("path", rec.FullPath),
				slog.String("error", err.Error()),
			)
		}
	}

	removed, err := s.store.Remove(id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			// Конкурентное удаление успело раньше
			middleware.OperationsTotal.WithLabelValues("delete", "not_found").Inc()
			return ErrNotFound
		}
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("удаление записи %s: %w", id, err)
	}

	middleware.FilesTotal.WithLabelValues(string(removed.FileType), string(removed.Backend)).Dec()
	middleware.StorageBytes.Sub(float64(removed.FileSize))
	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()

	s.logger.Info("Файл удалён",
		slog.String("id", id),
		slog.String("path", removed.FullPath),
		slog.String("backend", string(removed.Backend)),
	)
	return nil
}

// RecountMetrics пересчитывает gauge-метрики файлов по документу
// метаданных. Вызывается при старте и после миграции.
func RecountMetrics(store *metastore.Store) {
	middleware.FilesTotal.Reset()
	var totalBytes int64
	for _, rec := range store.All() {
		middleware.FilesTotal.WithLabelValues(string(rec.FileType), string(rec.Backend)).Inc()
		totalBytes += rec.FileSize
	}
	middleware.StorageBytes.Set(float64(totalBytes))
}
