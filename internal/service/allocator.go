// Пакет service — бизнес-логика Snap-Drop.
// allocator.go — выделение уникальных каталогов для загрузок.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/naming"
)

// AllocationError — ошибка выделения каталога загрузки.
type AllocationError struct {
	Folder string
	Err    error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("выделение каталога %s: %s", e.Folder, e.Err.Error())
}

func (e *AllocationError) Unwrap() error { return e.Err }

// PathAllocator выделяет уникальные каталоги вида
// <sanitized-name>-YYYYMMDD-HHMMSS[-NNN]. Коллизии разрешаются
// числовым суффиксом. Выделенные в текущем процессе имена
// запоминаются, чтобы два конкурентных запроса в одну секунду
// не получили один каталог.
type PathAllocator struct {
	backend backend.Backend
	logger  *slog.Logger

	mu        sync.Mutex
	allocated map[string]struct{}
}

// NewPathAllocator создаёт аллокатор каталогов.
func NewPathAllocator(b backend.Backend, logger *slog.Logger) *PathAllocator {
	return &PathAllocator{
		backend:   b,
		logger:    logger.With(slog.String("component", "path_allocator")),
		allocated: make(map[string]struct{}),
	}
}

// Allocate выделяет каталог для загрузчика uploaderName в момент uploadTime.
// Каталог создаётся в бэкенде до возврата.
func (a *PathAllocator) Allocate(ctx context.Context, uploaderName string, uploadTime time.Time) (string, error) {
	base := naming.FolderSegment(uploaderName, uploadTime)

	a.mu.Lock()
	defer a.mu.Unlock()

	folder, err := a.pickLocked(ctx, base)
	if err != nil {
		return "", err
	}

	if err := a.backend.EnsureFolder(ctx, folder); err != nil {
		return "", &AllocationError{Folder: folder, Err: err}
	}
	a.allocated[folder] = struct{}{}

	if folder != base {
		a.logger.Info("Коллизия имени каталога, выделен суффикс",
			slog.String("base", base),
			slog.String("folder", folder),
		)
	}
	return folder, nil
}

// pickLocked подбирает свободное имя: base, затем base-001, base-002, ...
// Вызывается под a.mu.
func (a *PathAllocator) pickLocked(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; ; i++ {
		if _, busy := a.allocated[candidate]; !busy {
			exists, err := a.backend.FolderExists(ctx, candidate)
			if err != nil {
				return "", &AllocationError{Folder: candidate, Err: err}
			}
			if !exists {
				return candidate, nil
			}
		}
		if i < 1000 {
			candidate = fmt.Sprintf("%s-%03d", base, i)
		} else {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
	}
}

// Release освобождает имя каталога из in-process реестра.
// Вызывается при откате загрузки, не тронувшей каталог на диске.
func (a *PathAllocator) Release(folder string) {
	a.mu.Lock()
	delete(a.allocated, folder)
	a.mu.Unlock()
}
