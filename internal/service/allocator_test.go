package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/snapdrop/internal/storage/backend"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBackend(t *testing.T) *backend.Local {
	t.Helper()
	l, err := backend.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания backend-а: %v", err)
	}
	return l
}

func TestPathAllocator_Allocate(t *testing.T) {
	be := newTestBackend(t)
	a := NewPathAllocator(be, testLogger())
	ctx := context.Background()
	uploadTime := time.Date(2025, 9, 25, 14, 42, 30, 0, time.UTC)

	folder, err := a.Allocate(ctx, "Jane Smith", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}
	if folder != "jane-smith-20250925-144230" {
		t.Errorf("folder = %q, ожидалось jane-smith-20250925-144230", folder)
	}

	exists, err := be.FolderExists(ctx, folder)
	if err != nil {
		t.Fatalf("Ошибка FolderExists: %v", err)
	}
	if !exists {
		t.Error("папка не создана в backend-е")
	}
}

func TestPathAllocator_CollisionSuffix(t *testing.T) {
	be := newTestBackend(t)
	a := NewPathAllocator(be, testLogger())
	ctx := context.Background()
	uploadTime := time.Date(2025, 9, 25, 14, 42, 30, 0, time.UTC)

	first, err := a.Allocate(ctx, "jane", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}
	second, err := a.Allocate(ctx, "jane", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}
	third, err := a.Allocate(ctx, "jane", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}

	if first != "jane-20250925-144230" {
		t.Errorf("первый каталог = %q", first)
	}
	if second != "jane-20250925-144230-001" {
		t.Errorf("второй каталог = %q, ожидался суффикс -001", second)
	}
	if third != "jane-20250925-144230-002" {
		t.Errorf("третий каталог = %q, ожидался суффикс -002", third)
	}
}

func TestPathAllocator_CollisionWithExistingFolder(t *testing.T) {
	be := newTestBackend(t)
	ctx := context.Background()
	uploadTime := time.Date(2025, 9, 25, 14, 42, 30, 0, time.UTC)

	// Каталог существует на диске, но не в in-process реестре
	// (например, создан прошлым запуском процесса)
	if err := be.EnsureFolder(ctx, "jane-20250925-144230"); err != nil {
		t.Fatalf("Ошибка EnsureFolder: %v", err)
	}

	a := NewPathAllocator(be, testLogger())
	folder, err := a.Allocate(ctx, "jane", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}
	if folder != "jane-20250925-144230-001" {
		t.Errorf("folder = %q, ожидался суффикс -001 при занятом базовом имени", folder)
	}
}

func TestPathAllocator_ConcurrentDistinct(t *testing.T) {
	be := newTestBackend(t)
	a := NewPathAllocator(be, testLogger())
	ctx := context.Background()
	uploadTime := time.Date(2025, 9, 25, 14, 42, 30, 0, time.UTC)

	const goroutines = 10
	results := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			folder, err := a.Allocate(ctx, "jane", uploadTime)
			if err != nil {
				t.Errorf("Ошибка Allocate: %v", err)
				return
			}
			results <- folder
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for folder := range results {
		if seen[folder] {
			t.Errorf("каталог %q выделен дважды", folder)
		}
		seen[folder] = true
	}
	if len(seen) != goroutines {
		t.Errorf("выделено %d уникальных каталогов, ожидалось %d", len(seen), goroutines)
	}
}

func TestPathAllocator_Release(t *testing.T) {
	be := newTestBackend(t)
	a := NewPathAllocator(be, testLogger())
	ctx := context.Background()
	uploadTime := time.Date(2025, 9, 25, 14, 42, 30, 0, time.UTC)

	folder, err := a.Allocate(ctx, "jane", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}

	// Освобождение снимает имя из in-process реестра, но папка
	// на диске осталась — повторное выделение получит суффикс
	a.Release(folder)

	next, err := a.Allocate(ctx, "jane", uploadTime)
	if err != nil {
		t.Fatalf("Ошибка Allocate: %v", err)
	}
	if next == folder {
		t.Errorf("выделен тот же каталог %q: папка на диске должна считаться занятой", next)
	}
}
