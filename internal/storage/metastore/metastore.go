// Пакет metastore — журнал метаданных файлов, единый документ
// metadata.json в корне uploads root.
//
// Документ — JSON-массив FileRecord в порядке загрузки. Является
// process-wide разделяемым состоянием: каждый цикл
// load → mutate → persist выполняется под эксклюзивным мьютексом,
// чтобы два конкурентных изменения не потеряли обновления друг
// друга (last-writer-wins на весь документ — именно тот сбой,
// от которого защищает блокировка).
//
// Все записи на диск атомарны: temp файл → fsync → rename,
// частично записанный документ не виден никогда. При ошибке
// persist in-memory состояние откатывается — предыдущий документ
// остаётся нетронутым.
package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bigkaa/snapdrop/internal/domain/model"
)

// DocumentName — имя файла документа метаданных в uploads root.
const DocumentName = "metadata.json"

// backupTimeLayout — формат метки времени в имени резервной копии.
const backupTimeLayout = "20060102_150405"

// ErrNotFound — запись с указанным id отсутствует в документе.
var ErrNotFound = errors.New("запись метаданных не найдена")

// Store — хранилище документа метаданных.
type Store struct {
	// path — путь к metadata.json
	path string

	mu      sync.Mutex
	records []*model.FileRecord          // документ, порядок вставки
	byID    map[string]*model.FileRecord // id → запись
	logger  *slog.Logger
}

// Open загружает документ метаданных из указанной директории.
// Отсутствующий документ — пустое хранилище, не ошибка.
// Legacy-записи нормализуются при загрузке (Backend, FullPath),
// сам документ при этом не перезаписывается.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   filepath.Join(dir, DocumentName),
		byID:   make(map[string]*model.FileRecord),
		logger: logger.With(slog.String("component", "metastore")),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("ошибка чтения документа %s: %w", s.path, err)
	}

	var records []*model.FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("ошибка десериализации документа %s: %w", s.path, err)
	}

	for _, rec := range records {
		rec.Normalize()
		if _, dup := s.byID[rec.ID]; dup {
			// Дубликат id нарушает инвариант документа — оставляем
			// первую запись, проблему видно в логах
			s.logger.Warn("Дубликат id в документе метаданных, запись пропущена",
				slog.String("id", rec.ID),
			)
			continue
		}
		s.records = append(s.records, rec)
		s.byID[rec.ID] = rec
	}

	return s, nil
}

// Path возвращает путь к файлу документа.
func (s *Store) Path() string {
	return s.path
}

// Count возвращает количество записей.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get возвращает копию записи по id, nil — если записи нет.
func (s *Store) Get(id string) *model.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil
	}
	clone := *rec
	return &clone
}

// All возвращает копии всех записей в порядке загрузки.
func (s *Store) All() []*model.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*model.FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		clone := *rec
		result = append(result, &clone)
	}
	return result
}

// AppendBatch добавляет записи одного batch-а загрузки и атомарно
// персистирует документ. Либо все записи добавлены и документ
// записан, либо in-memory состояние откачено и документ не тронут.
func (s *Store) AppendBatch(recs []*model.FileRecord) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if _, dup := s.byID[rec.ID]; dup {
			return fmt.Errorf("запись с id %s уже существует", rec.ID)
		}
	}

	prevLen := len(s.records)
	for _, rec := range recs {
		clone := *rec
		s.records = append(s.records, &clone)
		s.byID[clone.ID] = &clone
	}

	if err := s.persistLocked(); err != nil {
		// Откат: документ на диске не изменился
		for _, rec := range s.records[prevLen:] {
			delete(s.byID, rec.ID)
		}
		s.records = s.records[:prevLen]
		return err
	}
	return nil
}

// Remove удаляет запись по id и атомарно персистирует документ.
// Возвращает копию удалённой записи. ErrNotFound — если записи нет,
// документ при этом не изменяется.
func (s *Store) Remove(id string) (*model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}

	prev := s.records
	s.records = append(append([]*model.FileRecord{}, prev[:idx]...), prev[idx+1:]...)
	delete(s.byID, id)

	if err := s.persistLocked(); err != nil {
		s.records = prev
		s.byID[id] = rec
		return nil, err
	}

	clone := *rec
	return &clone, nil
}

// ReplaceAll заменяет документ целиком и атомарно персистирует.
// Используется миграцией: обновлённый документ записывается один
// раз после завершения всех перемещений.
func (s *Store) ReplaceAll(recs []*model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevRecords, prevByID := s.records, s.byID

	s.records = make([]*model.FileRecord, 0, len(recs))
	s.byID = make(map[string]*model.FileRecord, len(recs))
	for _, rec := range recs {
		clone := *rec
		s.records = append(s.records, &clone)
		s.byID[clone.ID] = &clone
	}

	if err := s.persistLocked(); err != nil {
		s.records, s.byID = prevRecords, prevByID
		return err
	}
	return nil
}

// Backup создаёт резервную копию документа:
// metadata.json.backup.YYYYMMDD_HHMMSS. Возвращает путь копии.
// Отсутствующий документ — пустая строка без ошибки.
func (s *Store) Backup(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка открытия документа для резервной копии: %w", err)
	}
	defer src.Close()

	backupPath := fmt.Sprintf("%s.backup.%s", s.path, now.UTC().Format(backupTimeLayout))
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания резервной копии %s: %w", backupPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("ошибка записи резервной копии %s: %w", backupPath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", fmt.Errorf("ошибка закрытия резервной копии %s: %w", backupPath, err)
	}

	return backupPath, nil
}

// persistLocked атомарно записывает документ на диск.
// Вызывается только под s.mu.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func (s *Store) persistLocked() error {
	recs := s.records
	if recs == nil {
		// Пустой документ сериализуется как [], а не null
		recs = []*model.FileRecord{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации документа: %w", err)
	}

	tmpPath := s.path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи документа: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}
