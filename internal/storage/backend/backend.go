// Пакет backend — абстракция физического хранилища байтов.
// Два варианта: локальная файловая система и S3-совместимое
// объектное хранилище. Весь остальной код работает только через
// интерфейс Backend и единый относительный путь full_path
// ({folder}/{stored_name} либо {stored_name} для плоской раскладки).
package backend

import (
	"context"
	"errors"
	"io"

	"github.com/bigkaa/snapdrop/internal/domain/model"
)

// ErrNotFound — объект отсутствует в хранилище.
// При удалении уже отсутствующего объекта вызывающий код обязан
// трактовать эту ошибку как допустимый исход, а не как сбой.
var ErrNotFound = errors.New("объект не найден в хранилище")

// PutResult — результат записи объекта.
type PutResult struct {
	// Size — фактически записанное количество байт
	// (измеряется при записи, заголовкам клиента не доверяем)
	Size int64
	// RemoteURL — публичный URL объекта (только объектное хранилище)
	RemoteURL string
}

// Backend — контракт хранилища байтов.
// Пути — относительные full_path в прямых слэшах.
type Backend interface {
	// Kind возвращает тип backend-а для записи в метаданные.
	Kind() model.StorageBackend

	// Put записывает поток по указанному пути. Частично записанный
	// объект никогда не виден по целевому пути: локальный вариант
	// пишет во временный файл той же папки и атомарно переименовывает,
	// объектное хранилище атомарно по своей природе.
	Put(ctx context.Context, fullPath string, r io.Reader) (*PutResult, error)

	// Get открывает объект для чтения и возвращает его размер.
	// ErrNotFound — если объект отсутствует.
	Get(ctx context.Context, fullPath string) (io.ReadCloser, int64, error)

	// Delete удаляет объект. ErrNotFound — если объект отсутствует.
	Delete(ctx context.Context, fullPath string) error

	// Exists проверяет существование объекта.
	Exists(ctx context.Context, fullPath string) (bool, error)

	// Move перемещает объект на новый путь (используется миграцией).
	// ErrNotFound — если исходный объект отсутствует.
	Move(ctx context.Context, oldPath, newPath string) error

	// EnsureFolder идемпотентно создаёт папку. Для объектного
	// хранилища префиксы не требуют создания — вызов всегда успешен,
	// чтобы вызывающий код не зависел от варианта backend-а.
	EnsureFolder(ctx context.Context, folderPath string) error

	// FolderExists проверяет существование папки (или префикса).
	FolderExists(ctx context.Context, folderPath string) (bool, error)
}
