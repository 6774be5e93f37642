// Пакет model — доменные модели snapdrop.
// FileRecord — единая структура метаданных файла, используется
// как in-memory представление и как формат элемента metadata.json.
package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// StorageBackend — тип хранилища, в котором лежат байты файла.
type StorageBackend string

const (
	// BackendLocal — локальная файловая система (uploads root)
	BackendLocal StorageBackend = "local"
	// BackendS3 — объектное хранилище (S3-совместимое)
	BackendS3 StorageBackend = "s3"
)

// FileType — тип содержимого файла, выводится из расширения.
type FileType string

const (
	// TypeImage — изображение
	TypeImage FileType = "image"
	// TypeVideo — видео
	TypeVideo FileType = "video"
)

// FileRecord — метаданные одного загруженного файла. Соответствует
// элементу массива metadata.json. Имена JSON-полей совпадают с
// историческим форматом документа, поэтому старые документы
// читаются без преобразований.
type FileRecord struct {
	// ID — уникальный идентификатор файла (UUID v4), неизменяемый
	ID string `json:"id"`

	// OriginalName — имя файла при загрузке. Только для отображения,
	// никогда не используется как компонент пути.
	OriginalName string `json:"original_name"`

	// StoredName — сгенерированное имя файла: {id}.{ext}
	StoredName string `json:"stored_name"`

	// FolderPath — сегмент папки сессии загрузки,
	// например "jane-smith-20250925-144230".
	// Пустой у legacy-записей плоской раскладки.
	FolderPath string `json:"folder_path,omitempty"`

	// FullPath — путь файла относительно корня хранилища:
	// {folder_path}/{stored_name}, либо {stored_name} для плоской
	// раскладки. Единственный ключ для операций с backend.
	FullPath string `json:"full_path,omitempty"`

	// UploadTime — дата и время загрузки (UTC)
	UploadTime Timestamp `json:"upload_time"`

	// UploaderName — имя загрузившего, как введено. Только для отображения.
	UploaderName string `json:"uploader_name"`

	// UploaderEmail — email загрузившего (опционально)
	UploaderEmail string `json:"uploader_email,omitempty"`

	// FileType — тип файла (image, video)
	FileType FileType `json:"file_type"`

	// FileSize — размер в байтах, измеренный при записи
	FileSize int64 `json:"file_size"`

	// Backend — хранилище, в котором лежат байты.
	// У legacy-записей отсутствует и выводится из s3_url.
	Backend StorageBackend `json:"backend,omitempty"`

	// RemoteURL — публичный URL объекта (только для backend = s3).
	// JSON-имя s3_url сохранено из исторического формата.
	RemoteURL string `json:"s3_url,omitempty"`
}

// Normalize приводит legacy-запись к текущей схеме:
// выводит Backend из s3_url и достраивает FullPath для плоской раскладки.
// FolderPath не трогает — его отсутствие означает, что запись
// ещё не мигрирована.
func (r *FileRecord) Normalize() {
	if r.Backend == "" {
		if r.RemoteURL != "" {
			r.Backend = BackendS3
		} else {
			r.Backend = BackendLocal
		}
	}
	if r.FullPath == "" {
		if r.FolderPath != "" {
			r.FullPath = r.FolderPath + "/" + r.StoredName
		} else {
			r.FullPath = r.StoredName
		}
	}
}

// IsOrganized сообщает, лежит ли файл в папке сессии
// (false — плоская legacy-раскладка, кандидат на миграцию).
func (r *FileRecord) IsOrganized() bool {
	return r.FolderPath != ""
}

// Timestamp — время загрузки с терпимым парсингом.
// Исторические документы содержат наивные ISO-8601 метки
// (Python datetime.isoformat() без зоны) — они читаются как UTC.
// Сериализуется всегда в RFC3339 UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp создаёт Timestamp из time.Time (приводит к UTC).
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// naiveLayouts — форматы наивных меток времени legacy-документов.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// MarshalJSON сериализует время в RFC3339 UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON читает RFC3339 либо наивную ISO-8601 метку (как UTC).
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("нераспознаваемый формат времени: %q", s)
}

// ExtensionSet — допустимые расширения файлов с привязкой к типу.
// Ключи — расширения без точки, в нижнем регистре.
type ExtensionSet map[string]FileType

// NewExtensionSet строит ExtensionSet из списков расширений
// изображений и видео.
func NewExtensionSet(images, videos []string) ExtensionSet {
	set := make(ExtensionSet, len(images)+len(videos))
	for _, ext := range images {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = TypeImage
	}
	for _, ext := range videos {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = TypeVideo
	}
	return set
}

// Classify возвращает расширение и тип файла по его имени.
// ok = false, если расширение отсутствует или не входит в allow-list.
func (s ExtensionSet) Classify(filename string) (ext string, ft FileType, ok bool) {
	ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "", "", false
	}
	ft, ok = s[ext]
	return ext, ft, ok
}
