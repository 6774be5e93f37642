// Пакет migrate — миграция плоской раскладки хранилища в каталоги
// сессий загрузки.
//
// Legacy-записи (без folder_path) получают каталог
// <sanitized-name>-YYYYMMDD-HHMMSS, построенный из их собственных
// имени загрузившего и времени загрузки. Каталог детерминирован:
// повторный запуск миграции для уже мигрированных записей — no-op,
// а записи одного загрузившего с одинаковой секундой загрузки
// попадают в общий каталог.
//
// Порядок: резервная копия документа → перемещение байтов каждой
// записи → однократная запись обновлённого документа. Ошибка
// перемещения одной записи не прерывает миграцию: запись остаётся
// в плоской раскладке и попадает в отчёт, остальные мигрируются.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
	"github.com/bigkaa/snapdrop/internal/storage/naming"
)

// Failure — одна не мигрированная запись.
type Failure struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report — итог одного запуска миграции.
type Report struct {
	// DryRun — запуск без изменений
	DryRun bool `json:"dry_run"`
	// Total — всего записей в документе
	Total int `json:"total"`
	// Candidates — записей в плоской раскладке
	Candidates int `json:"candidates"`
	// Migrated — успешно перемещено
	Migrated int `json:"migrated"`
	// Failed — не перемещено
	Failed []Failure `json:"failed,omitempty"`
	// BackupPath — путь резервной копии документа (пустой при dry-run
	// и при отсутствии документа)
	BackupPath string `json:"backup_path,omitempty"`
}

// publicURLer — backend, умеющий строить публичный URL объекта.
// Реализуется объектным хранилищем: после перемещения ключа
// публичный URL записи пересчитывается.
type publicURLer interface {
	PublicURL(fullPath string) string
}

// Migrator перемещает legacy-файлы плоской раскладки в каталоги сессий.
type Migrator struct {
	backend backend.Backend
	store   *metastore.Store
	logger  *slog.Logger
}

// New создаёт мигратор.
func New(b backend.Backend, store *metastore.Store, logger *slog.Logger) *Migrator {
	return &Migrator{
		backend: b,
		store:   store,
		logger:  logger.With(slog.String("component", "migrate")),
	}
}

// Run выполняет миграцию. При dryRun перемещения не выполняются
// и документ не изменяется — только отчёт о том, что было бы сделано.
//
// Отмена ctx прерывает обход; уже перемещённые записи фиксируются
// в документе, чтобы раскладка и метаданные не разошлись.
func (m *Migrator) Run(ctx context.Context, dryRun bool) (*Report, error) {
	records := m.store.All()

	report := &Report{
		DryRun: dryRun,
		Total:  len(records),
	}
	for _, rec := range records {
		if !rec.IsOrganized() {
			report.Candidates++
		}
	}

	if report.Candidates == 0 {
		m.logger.Info("Все записи уже в каталогах сессий, миграция не требуется",
			slog.Int("total", report.Total),
		)
		return report, nil
	}

	if !dryRun {
		backupPath, err := m.store.Backup(time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("резервная копия документа: %w", err)
		}
		report.BackupPath = backupPath
		if backupPath != "" {
			m.logger.Info("Создана резервная копия документа",
				slog.String("path", backupPath),
			)
		}
	}

	var interrupted bool
	for _, rec := range records {
		if rec.IsOrganized() {
			continue
		}
		if err := ctx.Err(); err != nil {
			interrupted = true
			report.Failed = append(report.Failed, Failure{
				ID:     rec.ID,
				Path:   rec.FullPath,
				Reason: "миграция прервана",
			})
			continue
		}

		folder := naming.FolderSegment(rec.UploaderName, rec.UploadTime.Time)
		newPath := folder + "/" + rec.StoredName

		if dryRun {
			m.logger.Info("dry-run: запись будет перемещена",
				slog.String("id", rec.ID),
				slog.String("from", rec.FullPath),
				slog.String("to", newPath),
			)
			report.Migrated++
			continue
		}

		if err := m.moveRecord(ctx, rec, folder, newPath); err != nil {
			m.logger.Error("Ошибка перемещения записи",
				slog.String("id", rec.ID),
				slog.String("from", rec.FullPath),
				slog.String("to", newPath),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, Failure{
				ID:     rec.ID,
				Path:   rec.FullPath,
				Reason: err.Error(),
			})
			continue
		}
		report.Migrated++
	}

	if !dryRun && report.Migrated > 0 {
		// Один атомарный persist на всю миграцию: байты уже перемещены,
		// документ обязан это отразить даже при частичном успехе
		if err := m.store.ReplaceAll(records); err != nil {
			return report, fmt.Errorf("запись обновлённого документа: %w", err)
		}
	}

	m.logger.Info("Миграция завершена",
		slog.Bool("dry_run", dryRun),
		slog.Int("candidates", report.Candidates),
		slog.Int("migrated", report.Migrated),
		slog.Int("failed", len(report.Failed)),
	)

	if interrupted {
		return report, ctx.Err()
	}
	return report, nil
}

// moveRecord перемещает байты одной записи и обновляет её поля.
func (m *Migrator) moveRecord(ctx context.Context, rec *model.FileRecord, folder, newPath string) error {
	if err := m.backend.EnsureFolder(ctx, folder); err != nil {
		return fmt.Errorf("создание каталога %s: %w", folder, err)
	}

	if err := m.backend.Move(ctx, rec.FullPath, newPath); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			// Байты могли переместить вручную либо предыдущим
			// прерванным запуском — если объект уже на новом месте,
			// достаточно поправить запись
			exists, exErr := m.backend.Exists(ctx, newPath)
			if exErr == nil && exists {
				m.logger.Warn("Объект уже на целевом пути, обновляется только запись",
					slog.String("id", rec.ID),
					slog.String("path", newPath),
				)
			} else {
				return fmt.Errorf("исходный объект %s отсутствует", rec.FullPath)
			}
		} else {
			return err
		}
	}

	rec.FolderPath = folder
	rec.FullPath = newPath
	if rec.Backend == model.BackendS3 {
		if pu, ok := m.backend.(publicURLer); ok {
			rec.RemoteURL = pu.PublicURL(newPath)
		}
	}
	return nil
}
