// Пакет service — бизнес-логика Snap-Drop.
// upload.go — координатор приёма batch-загрузок.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/snapdrop/internal/api/errors"
	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

// IngestFile — один файл из batch-а загрузки.
type IngestFile struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — оригинальное имя файла
	Filename string
	// Size — заявленный размер (из multipart header, 0 — неизвестен).
	// Используется только для ранней отбраковки; фактический размер
	// измеряется при записи.
	Size int64
}

// IngestParams — параметры batch-загрузки.
type IngestParams struct {
	// UploaderName — имя загрузившего, как введено (может быть пустым)
	UploaderName string
	// UploaderEmail — email загрузившего (опционально)
	UploaderEmail string
	// Files — файлы batch-а в порядке поступления
	Files []IngestFile
}

// FileFailure — отказ по одному файлу batch-а.
type FileFailure struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// IngestResult — результат batch-загрузки. Batch принимается частично:
// валидные файлы сохранены, отказ по каждому невалидному — в Failed.
type IngestResult struct {
	// Folder — выделенный каталог сессии (пустой, если ни один файл не принят)
	Folder string
	// Stored — записи сохранённых файлов в порядке поступления
	Stored []*model.FileRecord
	// Failed — отказы по файлам
	Failed []FileFailure
}

// UploadCoordinator принимает batch-и файлов: валидирует каждый файл,
// выделяет каталог сессии при первом валидном файле, пишет байты
// в backend и фиксирует все записи batch-а одним изменением документа
// метаданных.
type UploadCoordinator struct {
	cfg       *config.Config
	backend   backend.Backend
	store     *metastore.Store
	allocator *PathAllocator
	exts      model.ExtensionSet
	logger    *slog.Logger
}

// NewUploadCoordinator создаёт координатор загрузок.
func NewUploadCoordinator(
	cfg *config.Config,
	b backend.Backend,
	store *metastore.Store,
	allocator *PathAllocator,
	logger *slog.Logger,
) *UploadCoordinator {
	return &UploadCoordinator{
		cfg:       cfg,
		backend:   b,
		store:     store,
		allocator: allocator,
		exts:      model.NewExtensionSet(cfg.ImageExtensions, cfg.VideoExtensions),
		logger:    logger.With(slog.String("component", "upload_coordinator")),
	}
}

// Ingest обрабатывает batch загрузки.
//
// Поток:
//  1. Per-file валидация (расширение, заявленный размер)
//  2. Каталог сессии выделяется лениво — при первом валидном файле;
//     batch из одних невалидных файлов каталогов не создаёт
//  3. Байты каждого файла пишутся в backend (таймаут на операцию)
//  4. Все записи batch-а фиксируются одним AppendBatch
//
// При отмене ctx уже записанные файлы фиксируются, остальные
// получают отказ — байты без записи метаданных не остаются.
func (c *UploadCoordinator) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	result := &IngestResult{}
	uploadTime := time.Now().UTC()

	for _, file := range params.Files {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, FileFailure{
				Filename: file.Filename,
				Code:     apierrors.CodeInternalError,
				Message:  "Загрузка прервана",
			})
			continue
		}

		ext, fileType, ok := c.exts.Classify(file.Filename)
		if !ok {
			result.Failed = append(result.Failed, FileFailure{
				Filename: file.Filename,
				Code:     apierrors.CodeUnsupportedType,
				Message:  fmt.Sprintf("Недопустимый тип файла %q", file.Filename),
			})
			middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
			continue
		}

		if file.Size > c.cfg.MaxFileSize {
			result.Failed = append(result.Failed, FileFailure{
				Filename: file.Filename,
				Code:     apierrors.CodeFileTooLarge,
				Message: fmt.Sprintf("Размер файла %d байт превышает максимум %d байт",
					file.Size, c.cfg.MaxFileSize),
			})
			middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
			continue
		}

		// Каталог сессии — лениво, при первом валидном файле
		if result.Folder == "" {
			folder, err := c.allocator.Allocate(ctx, params.UploaderName, uploadTime)
			if err != nil {
				c.logger.Error("Ошибка выделения каталога загрузки",
					slog.String("uploader", params.UploaderName),
					slog.String("error", err.Error()),
				)
				return nil, err
			}
			result.Folder = folder
		}

		rec, failure := c.storeFile(ctx, result.Folder, file, ext, fileType, uploadTime, params)
		if failure != nil {
			result.Failed = append(result.Failed, *failure)
			middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
			continue
		}
		result.Stored = append(result.Stored, rec)
	}

	if len(result.Stored) == 0 {
		return result, nil
	}

	if err := c.store.AppendBatch(result.Stored); err != nil {
		// Документ не изменился — удаляем записанные байты,
		// чтобы не плодить orphan-файлы
		c.logger.Error("Ошибка фиксации метаданных batch-а, откат записанных файлов",
			slog.Int("files", len(result.Stored)),
			slog.String("error", err.Error()),
		)
		for _, rec := range result.Stored {
			delCtx, cancel := context.WithTimeout(context.Background(), c.cfg.BackendTimeout)
			if delErr := c.backend.Delete(delCtx, rec.FullPath); delErr != nil && !errors.Is(delErr, backend.ErrNotFound) {
				c.logger.Error("Ошибка отката файла",
					slog.String("path", rec.FullPath),
					slog.String("error", delErr.Error()),
				)
			}
			cancel()
		}
		return nil, fmt.Errorf("фиксация метаданных: %w", err)
	}

	for _, rec := range result.Stored {
		middleware.FilesTotal.WithLabelValues(string(rec.FileType), string(rec.Backend)).Inc()
		middleware.StorageBytes.Add(float64(rec.FileSize))
		middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	}

	c.logger.Info("Batch загрузки принят",
		slog.String("folder", result.Folder),
		slog.Int("stored", len(result.Stored)),
		slog.Int("failed", len(result.Failed)),
		slog.String("uploader", params.UploaderName),
	)

	return result, nil
}

// storeFile записывает один файл в backend и формирует его запись.
func (c *UploadCoordinator) storeFile(
	ctx context.Context,
	folder string,
	file IngestFile,
	ext string,
	fileType model.FileType,
	uploadTime time.Time,
	params IngestParams,
) (*model.FileRecord, *FileFailure) {
	id := uuid.New().String()
	storedName := id + "." + ext
	fullPath := folder + "/" + storedName

	putCtx, cancel := context.WithTimeout(ctx, c.cfg.BackendTimeout)
	defer cancel()

	// LimitReader на байт больше максимума: если лимит выбран
	// полностью, клиент занизил заявленный размер
	limited := io.LimitReader(file.Reader, c.cfg.MaxFileSize+1)
	res, err := c.backend.Put(putCtx, fullPath, limited)
	if err != nil {
		c.logger.Error("Ошибка записи файла в хранилище",
			slog.String("filename", file.Filename),
			slog.String("path", fullPath),
			slog.String("error", err.Error()),
		)
		return nil, &FileFailure{
			Filename: file.Filename,
			Code:     apierrors.CodeBackendError,
			Message:  "Ошибка записи файла в хранилище",
		}
	}

	if res.Size > c.cfg.MaxFileSize {
		delCtx, delCancel := context.WithTimeout(context.Background(), c.cfg.BackendTimeout)
		if delErr := c.backend.Delete(delCtx, fullPath); delErr != nil && !errors.Is(delErr, backend.ErrNotFound) {
			c.logger.Error("Ошибка удаления файла сверх лимита",
				slog.String("path", fullPath),
				slog.String("error", delErr.Error()),
			)
		}
		delCancel()
		return nil, &FileFailure{
			Filename: file.Filename,
			Code:     apierrors.CodeFileTooLarge,
			Message:  fmt.Sprintf("Размер файла превышает максимум %d байт", c.cfg.MaxFileSize),
		}
	}

	return &model.FileRecord{
		ID:            id,
		OriginalName:  file.Filename,
		StoredName:    storedName,
		FolderPath:    folder,
		FullPath:      fullPath,
		UploadTime:    model.NewTimestamp(uploadTime),
		UploaderName:  params.UploaderName,
		UploaderEmail: params.UploaderEmail,
		FileType:      fileType,
		FileSize:      res.Size,
		Backend:       c.backend.Kind(),
		RemoteURL:     res.RemoteURL,
	}, nil
}
