package service

import (
	"context"
	"strings"
	"testing"
	"time"

	apierrors "github.com/bigkaa/snapdrop/internal/api/errors"
	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/storage/backend"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

// testEnv — общая обвязка сервисных тестов: локальный backend
// и документ метаданных в одном t.TempDir().
type testEnv struct {
	cfg         *config.Config
	backend     *backend.Local
	store       *metastore.Store
	coordinator *UploadCoordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	be, err := backend.NewLocal(dir)
	if err != nil {
		t.Fatalf("Ошибка создания backend-а: %v", err)
	}
	store, err := metastore.Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Ошибка открытия metastore: %v", err)
	}

	cfg := &config.Config{
		UploadsDir:      dir,
		Backend:         config.BackendLocal,
		MaxFileSize:     1 << 20,
		ImageExtensions: []string{"jpg", "png"},
		VideoExtensions: []string{"mp4"},
		BackendTimeout:  30 * time.Second,
	}

	allocator := NewPathAllocator(be, testLogger())
	return &testEnv{
		cfg:         cfg,
		backend:     be,
		store:       store,
		coordinator: NewUploadCoordinator(cfg, be, store, allocator, testLogger()),
	}
}

func TestIngest_Batch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.coordinator.Ingest(ctx, IngestParams{
		UploaderName:  "Jane Smith",
		UploaderEmail: "jane@example.com",
		Files: []IngestFile{
			{Reader: strings.NewReader("photo-bytes"), Filename: "photo.jpg"},
			{Reader: strings.NewReader("video-bytes"), Filename: "clip.mp4"},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}

	if len(result.Stored) != 2 {
		t.Fatalf("сохранено %d файлов, ожидалось 2", len(result.Stored))
	}
	if len(result.Failed) != 0 {
		t.Errorf("отказов %d, ожидалось 0: %+v", len(result.Failed), result.Failed)
	}
	if result.Folder == "" {
		t.Fatal("каталог сессии не выделен")
	}
	if !strings.HasPrefix(result.Folder, "jane-smith-") {
		t.Errorf("каталог = %q, ожидался префикс jane-smith-", result.Folder)
	}

	for _, rec := range result.Stored {
		if rec.FolderPath != result.Folder {
			t.Errorf("запись %s: FolderPath = %q, ожидалось %q", rec.ID, rec.FolderPath, result.Folder)
		}
		if rec.FullPath != rec.FolderPath+"/"+rec.StoredName {
			t.Errorf("запись %s: FullPath = %q не согласован", rec.ID, rec.FullPath)
		}
		if rec.Backend != model.BackendLocal {
			t.Errorf("запись %s: Backend = %q", rec.ID, rec.Backend)
		}
		if rec.UploaderName != "Jane Smith" {
			t.Errorf("запись %s: UploaderName = %q", rec.ID, rec.UploaderName)
		}

		exists, err := env.backend.Exists(ctx, rec.FullPath)
		if err != nil {
			t.Fatalf("Ошибка Exists: %v", err)
		}
		if !exists {
			t.Errorf("байты записи %s отсутствуют по пути %s", rec.ID, rec.FullPath)
		}
		if env.store.Get(rec.ID) == nil {
			t.Errorf("запись %s не зафиксирована в документе", rec.ID)
		}
	}

	// Типы определены по расширению
	if result.Stored[0].FileType != model.TypeImage {
		t.Errorf("photo.jpg: FileType = %q, ожидался image", result.Stored[0].FileType)
	}
	if result.Stored[1].FileType != model.TypeVideo {
		t.Errorf("clip.mp4: FileType = %q, ожидался video", result.Stored[1].FileType)
	}

	// Фактический размер измерен при записи
	if result.Stored[0].FileSize != int64(len("photo-bytes")) {
		t.Errorf("FileSize = %d, ожидалось %d", result.Stored[0].FileSize, len("photo-bytes"))
	}
}

func TestIngest_PartialAcceptance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.coordinator.Ingest(ctx, IngestParams{
		UploaderName: "bob",
		Files: []IngestFile{
			{Reader: strings.NewReader("ok"), Filename: "good.jpg"},
			{Reader: strings.NewReader("bad"), Filename: "malware.exe"},
			{Reader: strings.NewReader("noext"), Filename: "noext"},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}

	if len(result.Stored) != 1 {
		t.Errorf("сохранено %d файлов, ожидался 1", len(result.Stored))
	}
	if len(result.Failed) != 2 {
		t.Fatalf("отказов %d, ожидалось 2", len(result.Failed))
	}
	for _, f := range result.Failed {
		if f.Code != apierrors.CodeUnsupportedType {
			t.Errorf("файл %s: код %q, ожидался UNSUPPORTED_TYPE", f.Filename, f.Code)
		}
	}
}

func TestIngest_AllInvalid_NoFolderCreated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.coordinator.Ingest(ctx, IngestParams{
		UploaderName: "bob",
		Files: []IngestFile{
			{Reader: strings.NewReader("bad"), Filename: "malware.exe"},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}

	if len(result.Stored) != 0 {
		t.Errorf("сохранено %d файлов, ожидалось 0", len(result.Stored))
	}
	if result.Folder != "" {
		t.Errorf("каталог %q выделен для batch-а из одних невалидных файлов", result.Folder)
	}
	if env.store.Count() != 0 {
		t.Errorf("в документе %d записей, ожидалось 0", env.store.Count())
	}
}

func TestIngest_DeclaredSizeTooLarge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.coordinator.Ingest(ctx, IngestParams{
		UploaderName: "bob",
		Files: []IngestFile{
			{Reader: strings.NewReader("x"), Filename: "huge.jpg", Size: env.cfg.MaxFileSize + 1},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0].Code != apierrors.CodeFileTooLarge {
		t.Errorf("ожидался отказ FILE_TOO_LARGE, получено %+v", result.Failed)
	}
}

func TestIngest_ActualSizeTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxFileSize = 10
	ctx := context.Background()

	// Заявленный размер занижен, фактический поток больше лимита
	result, err := env.coordinator.Ingest(ctx, IngestParams{
		UploaderName: "bob",
		Files: []IngestFile{
			{Reader: strings.NewReader(strings.Repeat("a", 100)), Filename: "lied.jpg", Size: 5},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}
	if len(result.Stored) != 0 {
		t.Errorf("файл сверх лимита сохранён")
	}
	if len(result.Failed) != 1 || result.Failed[0].Code != apierrors.CodeFileTooLarge {
		t.Fatalf("ожидался отказ FILE_TOO_LARGE, получено %+v", result.Failed)
	}

	// Байты сверх лимита не остались в хранилище
	if env.store.Count() != 0 {
		t.Errorf("в документе %d записей, ожидалось 0", env.store.Count())
	}
}

func TestIngest_AnonymousUploader(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.coordinator.Ingest(ctx, IngestParams{
		Files: []IngestFile{
			{Reader: strings.NewReader("data"), Filename: "pic.png"},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}
	if len(result.Stored) != 1 {
		t.Fatalf("сохранено %d файлов, ожидался 1", len(result.Stored))
	}
	if !strings.HasPrefix(result.Folder, "anonymous-") {
		t.Errorf("каталог = %q, ожидался префикс anonymous-", result.Folder)
	}
}

func TestIngest_StoredNameFromID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.coordinator.Ingest(ctx, IngestParams{
		UploaderName: "jane",
		Files: []IngestFile{
			{Reader: strings.NewReader("data"), Filename: "../../evil path.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("Ошибка Ingest: %v", err)
	}
	if len(result.Stored) != 1 {
		t.Fatalf("сохранено %d файлов, ожидался 1", len(result.Stored))
	}

	rec := result.Stored[0]
	// Имя хранения — {id}.{ext}, оригинальное имя только в метаданных
	if rec.StoredName != rec.ID+".jpg" {
		t.Errorf("StoredName = %q, ожидалось %q", rec.StoredName, rec.ID+".jpg")
	}
	if rec.OriginalName != "../../evil path.jpg" {
		t.Errorf("OriginalName = %q должен сохраняться как есть", rec.OriginalName)
	}
	if strings.Contains(rec.FullPath, "..") {
		t.Errorf("FullPath = %q содержит компоненты traversal", rec.FullPath)
	}
}
