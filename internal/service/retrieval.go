// retrieval.go — сервис выдачи файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

// Ошибки сервисного слоя.
var (
	// ErrNotFound — файл с указанным id не существует.
	ErrNotFound = errors.New("файл не найден")
	// ErrInconsistent — запись метаданных есть, байтов в хранилище нет.
	// Наружу неотличима от отсутствия файла, но логируется отдельно:
	// это рассинхронизация хранилища, а не ошибка клиента.
	ErrInconsistent = errors.New("байты файла отсутствуют в хранилище")
)

// ResolvedFile — результат разрешения файла для выдачи.
type ResolvedFile struct {
	// Record — запись метаданных файла
	Record *model.FileRecord
	// Content — поток байтов (nil для redirect-выдачи)
	Content io.ReadCloser
	// Size — размер объекта в хранилище
	Size int64
	// RedirectURL — публичный URL объекта; выдача — через redirect,
	// байты через сервис не проксируются
	RedirectURL string
}

// RetrievalService разрешает id файла в его байты либо публичный URL.
type RetrievalService struct {
	cfg     *config.Config
	backend backend.Backend
	store   *metastore.Store
	logger  *slog.Logger
}

// NewRetrievalService создаёт сервис выдачи файлов.
func NewRetrievalService(cfg *config.Config, b backend.Backend, store *metastore.Store, logger *slog.Logger) *RetrievalService {
	return &RetrievalService{
		cfg:     cfg,
		backend: b,
		store:   store,
		logger:  logger.With(slog.String("component", "retrieval_service")),
	}
}

// Resolve находит файл по id и открывает его для выдачи.
// Для файлов объектного хранилища возвращает RedirectURL вместо потока.
// ErrNotFound — записи нет; ErrInconsistent — запись есть, байтов нет.
func (s *RetrievalService) Resolve(ctx context.Context, id string) (*ResolvedFile, error) {
	rec := s.store.Get(id)
	if rec == nil {
		middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
		return nil, ErrNotFound
	}

	if rec.Backend == model.BackendS3 && rec.RemoteURL != "" {
		middleware.OperationsTotal.WithLabelValues("download", "redirect").Inc()
		return &ResolvedFile{Record: rec, RedirectURL: rec.RemoteURL}, nil
	}

	content, size, err := s.backend.Get(ctx, rec.FullPath)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			// Запись живая, байтов нет — рассинхронизация хранилища.
			// Запись не удаляем: диагноз ставит проверка целостности,
			// решение принимает оператор.
			s.logger.Error("Запись метаданных без байтов в хранилище",
				slog.String("id", id),
				slog.String("path", rec.FullPath),
			)
			middleware.OperationsTotal.WithLabelValues("download", "inconsistent").Inc()
			return nil, ErrInconsistent
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		return nil, fmt.Errorf("открытие файла %s: %w", rec.FullPath, err)
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	return &ResolvedFile{Record: rec, Content: content, Size: size}, nil
}
