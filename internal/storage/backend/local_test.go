package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/snapdrop/internal/domain/model"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания Local: %v", err)
	}
	return l
}

func TestLocal_PutGetRoundtrip(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	data := []byte("содержимое тестового файла")
	res, err := l.Put(ctx, "jane-20250925-144230/photo.jpg", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Ошибка Put: %v", err)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, ожидалось %d", res.Size, len(data))
	}
	if res.RemoteURL != "" {
		t.Errorf("RemoteURL = %q, ожидалась пустая строка для локального backend-а", res.RemoteURL)
	}

	rc, size, err := l.Get(ctx, "jane-20250925-144230/photo.jpg")
	if err != nil {
		t.Fatalf("Ошибка Get: %v", err)
	}
	defer rc.Close()

	if size != int64(len(data)) {
		t.Errorf("размер при чтении = %d, ожидалось %d", size, len(data))
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Ошибка чтения: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("прочитанные данные не совпадают с записанными")
	}

	// Get возвращает Seeker (нужен для http.ServeContent)
	if _, ok := rc.(io.ReadSeeker); !ok {
		t.Errorf("Get должен возвращать io.ReadSeeker")
	}
}

func TestLocal_PutNoTmpLeftover(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	if _, err := l.Put(ctx, "folder/file.png", strings.NewReader("data")); err != nil {
		t.Fatalf("Ошибка Put: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(l.Root(), "folder"))
	if err != nil {
		t.Fatalf("Ошибка чтения папки: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), TmpSuffix) {
			t.Errorf("после успешной записи остался временный файл %s", e.Name())
		}
	}
}

func TestLocal_PutCancelledContext(t *testing.T) {
	l := newTestLocal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Put(ctx, "folder/file.png", strings.NewReader("data"))
	if err == nil {
		t.Fatal("ожидалась ошибка при отменённом контексте")
	}

	// Частично записанный файл не должен быть виден по целевому пути
	exists, err := l.Exists(context.Background(), "folder/file.png")
	if err != nil {
		t.Fatalf("Ошибка Exists: %v", err)
	}
	if exists {
		t.Error("файл виден по целевому пути после прерванной записи")
	}
}

func TestLocal_PathTraversalRejected(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	bad := []string{
		"../outside.txt",
		"folder/../../outside.txt",
		"/etc/passwd",
		"",
	}
	for _, p := range bad {
		if _, err := l.Put(ctx, p, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) должен отвергать путь за пределами root", p)
		}
		if _, _, err := l.Get(ctx, p); err == nil {
			t.Errorf("Get(%q) должен отвергать путь за пределами root", p)
		}
		if err := l.Delete(ctx, p); err == nil {
			t.Errorf("Delete(%q) должен отвергать путь за пределами root", p)
		}
	}
}

func TestLocal_DeleteNotFound(t *testing.T) {
	l := newTestLocal(t)

	err := l.Delete(context.Background(), "missing/file.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete отсутствующего файла: err = %v, ожидался ErrNotFound", err)
	}
}

func TestLocal_GetNotFound(t *testing.T) {
	l := newTestLocal(t)

	_, _, err := l.Get(context.Background(), "missing/file.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get отсутствующего файла: err = %v, ожидался ErrNotFound", err)
	}
}

func TestLocal_Move(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	if _, err := l.Put(ctx, "flat.jpg", strings.NewReader("data")); err != nil {
		t.Fatalf("Ошибка Put: %v", err)
	}

	if err := l.Move(ctx, "flat.jpg", "jane-20250925-144230/flat.jpg"); err != nil {
		t.Fatalf("Ошибка Move: %v", err)
	}

	exists, _ := l.Exists(ctx, "flat.jpg")
	if exists {
		t.Error("исходный файл остался после Move")
	}
	exists, _ = l.Exists(ctx, "jane-20250925-144230/flat.jpg")
	if !exists {
		t.Error("файл отсутствует по целевому пути после Move")
	}
}

func TestLocal_MoveNotFound(t *testing.T) {
	l := newTestLocal(t)

	err := l.Move(context.Background(), "missing.jpg", "folder/missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Move отсутствующего файла: err = %v, ожидался ErrNotFound", err)
	}
}

func TestLocal_EnsureFolderIdempotent(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.EnsureFolder(ctx, "jane-20250925-144230"); err != nil {
			t.Fatalf("EnsureFolder (попытка %d): %v", i+1, err)
		}
	}

	exists, err := l.FolderExists(ctx, "jane-20250925-144230")
	if err != nil {
		t.Fatalf("Ошибка FolderExists: %v", err)
	}
	if !exists {
		t.Error("папка не существует после EnsureFolder")
	}

	exists, err = l.FolderExists(ctx, "other-folder")
	if err != nil {
		t.Fatalf("Ошибка FolderExists: %v", err)
	}
	if exists {
		t.Error("FolderExists вернул true для несуществующей папки")
	}
}

func TestLocal_Kind(t *testing.T) {
	l := newTestLocal(t)
	if l.Kind() != model.BackendLocal {
		t.Errorf("Kind = %q, ожидалось %q", l.Kind(), model.BackendLocal)
	}
}
