// local.go — backend на локальной файловой системе.
// Запись по паттерну temp файл → fsync → atomic rename:
// по целевому пути никогда не виден частично записанный файл.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bigkaa/snapdrop/internal/domain/model"
)

// TmpSuffix — суффикс временных файлов незавершённой записи.
// Файлы с этим суффиксом игнорируются проверкой целостности.
const TmpSuffix = ".tmp"

// Local — хранилище в директории uploads root.
type Local struct {
	// root — корневая директория хранения файлов (SD_UPLOADS_DIR)
	root string
}

// NewLocal создаёт локальный backend. Создаёт корневую директорию,
// если она не существует.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

// Kind возвращает model.BackendLocal.
func (l *Local) Kind() model.StorageBackend {
	return model.BackendLocal
}

// Root возвращает путь к корневой директории хранения.
func (l *Local) Root() string {
	return l.root
}

// abs преобразует относительный full_path в абсолютный путь на диске.
// Отвергает пути, выходящие за пределы root (path traversal).
func (l *Local) abs(fullPath string) (string, error) {
	if fullPath == "" || !filepath.IsLocal(filepath.FromSlash(fullPath)) {
		return "", fmt.Errorf("недопустимый путь хранения: %q", fullPath)
	}
	return filepath.Join(l.root, filepath.FromSlash(fullPath)), nil
}

// Put записывает поток в файл по указанному пути.
// Паттерн: temp файл в той же папке → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (l *Local) Put(ctx context.Context, fullPath string, r io.Reader) (*PutResult, error) {
	dst, err := l.abs(fullPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать папку для %s: %w", fullPath, err)
	}

	tmpPath := dst + TmpSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &PutResult{Size: size}, nil
}

// Get открывает файл для чтения. Возвращаемый ReadCloser — *os.File,
// поэтому поддерживает Seek (http.ServeContent, Range-запросы).
func (l *Local) Get(ctx context.Context, fullPath string) (io.ReadCloser, int64, error) {
	src, err := l.abs(fullPath)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("ошибка открытия файла %s: %w", fullPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("ошибка получения информации о файле %s: %w", fullPath, err)
	}

	return f, info.Size(), nil
}

// Delete удаляет файл. ErrNotFound — если файл уже отсутствует.
func (l *Local) Delete(ctx context.Context, fullPath string) error {
	dst, err := l.abs(fullPath)
	if err != nil {
		return err
	}

	if err := os.Remove(dst); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления файла %s: %w", fullPath, err)
	}
	return nil
}

// Exists проверяет существование файла.
func (l *Local) Exists(ctx context.Context, fullPath string) (bool, error) {
	dst, err := l.abs(fullPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(dst)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка проверки файла %s: %w", fullPath, err)
}

// Move перемещает файл, создавая целевую папку при необходимости.
func (l *Local) Move(ctx context.Context, oldPath, newPath string) error {
	src, err := l.abs(oldPath)
	if err != nil {
		return err
	}
	dst, err := l.abs(newPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка проверки файла %s: %w", oldPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("не удалось создать папку для %s: %w", newPath, err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("ошибка перемещения %s → %s: %w", oldPath, newPath, err)
	}
	return nil
}

// EnsureFolder идемпотентно создаёт папку внутри root.
func (l *Local) EnsureFolder(ctx context.Context, folderPath string) error {
	dst, err := l.abs(folderPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return fmt.Errorf("не удалось создать папку %s: %w", folderPath, err)
	}
	return nil
}

// FolderExists проверяет существование папки.
func (l *Local) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	dst, err := l.abs(folderPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки папки %s: %w", folderPath, err)
	}
	return info.IsDir(), nil
}

// contextReader прерывает чтение при отмене контекста,
// чтобы долгая запись большого файла уважала таймаут вызывающего.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
