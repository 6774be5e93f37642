// integrity.go — фоновая проверка целостности хранилища.
//
// Проверка сравнивает документ метаданных с содержимым хранилища
// и обнаруживает:
//   - orphan_file: файл в хранилище без записи метаданных
//   - missing_file: запись метаданных без байтов в хранилище
//
// Проверка только диагностирует: ничего не удаляет и не чинит,
// решение принимает оператор. Запускается горутиной с периодическим
// тикером (SD_INTEGRITY_INTERVAL), доступен ручной запуск.
package service

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

// Prometheus метрики проверки целостности
var (
	// integrityRunsTotal — количество запусков проверки.
	integrityRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sd_integrity_runs_total",
		Help: "Общее количество запусков проверки целостности",
	})

	// integrityDurationSeconds — длительность проверки.
	integrityDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sd_integrity_duration_seconds",
		Help:    "Длительность проверки целостности в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// IntegrityIssue — одно расхождение хранилища и метаданных.
type IntegrityIssue struct {
	// Type — тип расхождения: orphan_file либо missing_file
	Type string `json:"type"`
	// Path — путь объекта относительно корня хранилища
	Path string `json:"path"`
	// FileID — id записи метаданных (только missing_file)
	FileID string `json:"file_id,omitempty"`
	// Description — человекочитаемое описание
	Description string `json:"description"`
}

// Типы расхождений.
const (
	IssueOrphanFile  = "orphan_file"
	IssueMissingFile = "missing_file"
)

// IntegrityReport — результат одного запуска проверки.
type IntegrityReport struct {
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	FilesChecked int              `json:"files_checked"`
	Issues       []IntegrityIssue `json:"issues"`
}

// IntegrityService — фоновая проверка целостности хранилища.
type IntegrityService struct {
	backend  backend.Backend
	store    *metastore.Store
	localDir string // корень локального хранилища, пустой для s3
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
}

// NewIntegrityService создаёт сервис проверки целостности.
// localDir — корень локального хранилища; для объектного хранилища
// передаётся пустая строка, и обход на orphan-файлы не выполняется
// (только проверка записей на существование байтов).
func NewIntegrityService(
	b backend.Backend,
	store *metastore.Store,
	localDir string,
	interval time.Duration,
	logger *slog.Logger,
) *IntegrityService {
	return &IntegrityService{
		backend:  b,
		store:    store,
		localDir: localDir,
		interval: interval,
		logger:   logger.With(slog.String("component", "integrity")),
	}
}

// Start запускает фоновую горутину проверки с периодическим тикером.
// При нулевом интервале фоновая проверка отключена.
func (s *IntegrityService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Фоновая проверка целостности отключена")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(runCtx)

	s.logger.Info("Фоновая проверка целостности запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновую проверку.
func (s *IntegrityService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Фоновая проверка целостности остановлена")
}

// run — основной цикл фоновой горутины.
func (s *IntegrityService) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл проверки.
// Если проверка уже выполняется, возвращает nil, true (skipped).
func (s *IntegrityService) RunOnce(ctx context.Context) (*IntegrityReport, bool) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		s.logger.Warn("Проверка целостности уже выполняется, пропуск")
		return nil, true
	}
	s.inProcess = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProcess = false
		s.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	s.logger.Info("Проверка целостности начата")

	records := s.store.All()
	issues := s.scanMissing(ctx, records)
	issues = append(issues, s.scanOrphans(records)...)

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	var orphans, missing int
	for _, issue := range issues {
		switch issue.Type {
		case IssueOrphanFile:
			orphans++
		case IssueMissingFile:
			missing++
		}
	}

	integrityRunsTotal.Inc()
	integrityDurationSeconds.Observe(duration.Seconds())
	middleware.IntegrityOrphanFiles.Set(float64(orphans))
	middleware.IntegrityMissingFiles.Set(float64(missing))

	s.logger.Info("Проверка целостности завершена",
		slog.Int("files_checked", len(records)),
		slog.Int("orphan_files", orphans),
		slog.Int("missing_files", missing),
		slog.Duration("duration", duration),
	)

	return &IntegrityReport{
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		FilesChecked: len(records),
		Issues:       issues,
	}, false
}

// scanMissing проверяет каждую запись метаданных на существование байтов.
func (s *IntegrityService) scanMissing(ctx context.Context, records []*model.FileRecord) []IntegrityIssue {
	var issues []IntegrityIssue
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return issues
		}

		exists, err := s.backend.Exists(ctx, rec.FullPath)
		if err != nil {
			s.logger.Warn("Ошибка проверки существования объекта",
				slog.String("id", rec.ID),
				slog.String("path", rec.FullPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !exists {
			issues = append(issues, IntegrityIssue{
				Type:        IssueMissingFile,
				Path:        rec.FullPath,
				FileID:      rec.ID,
				Description: "Запись метаданных без байтов в хранилище",
			})
		}
	}
	return issues
}

// scanOrphans обходит локальное хранилище и находит файлы без записи
// метаданных. Для объектного хранилища обход не выполняется.
func (s *IntegrityService) scanOrphans(records []*model.FileRecord) []IntegrityIssue {
	if s.localDir == "" {
		return nil
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.FullPath] = true
	}

	var issues []IntegrityIssue
	err := filepath.WalkDir(s.localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.localDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		// Пропускаем служебные файлы: документ метаданных,
		// его резервные копии, temp файлы
		name := d.Name()
		if strings.HasPrefix(name, metastore.DocumentName) {
			return nil
		}
		if strings.HasSuffix(name, backend.TmpSuffix) || strings.HasPrefix(name, ".") {
			return nil
		}

		if !known[rel] {
			issues = append(issues, IntegrityIssue{
				Type:        IssueOrphanFile,
				Path:        rel,
				Description: "Файл в хранилище без записи метаданных",
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Ошибка обхода хранилища",
			slog.String("error", err.Error()),
		)
	}
	return issues
}
