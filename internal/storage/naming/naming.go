// Пакет naming — генерация безопасных имён папок из недоверенных
// пользовательских данных. Чистые функции без I/O.
//
// Сегмент папки строится из имени загрузившего и секунды загрузки:
// "Jane Smith" + 2025-09-25T14:42:30Z → "jane-smith-20250925-144230".
// Результат Sanitize всегда соответствует ^[a-z0-9-]+$, поэтому
// не может содержать path traversal ("..", "/") или зарезервированные
// символы backend-ов.
package naming

import (
	"strings"
	"time"
	"unicode"
)

// FallbackSegment — подстановка для имён, из которых после очистки
// не осталось ни одного допустимого символа (например, только emoji).
const FallbackSegment = "anonymous"

// MaxSegmentLength — предел длины сегмента, защита от патологически
// длинных путей.
const MaxSegmentLength = 64

// folderTimeLayout — формат метки времени в имени папки (UTC).
const folderTimeLayout = "20060102-150405"

// Sanitize преобразует произвольную строку в сегмент пути:
// нижний регистр, серии пробельных символов и разделителей путей —
// в один дефис, всё вне [a-z0-9-] отбрасывается, повторные дефисы
// схлопываются, крайние дефисы обрезаются. Пустой результат заменяется
// на FallbackSegment, длина ограничена MaxSegmentLength.
func Sanitize(raw string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '/' || r == '\\':
			// Разделители схлопываются в один дефис
			if b.Len() > 0 && !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		}
	}

	result := strings.TrimRight(b.String(), "-")
	if len(result) > MaxSegmentLength {
		result = strings.TrimRight(result[:MaxSegmentLength], "-")
	}
	if result == "" {
		return FallbackSegment
	}
	return result
}

// FolderSegment строит имя папки сессии загрузки:
// sanitize(uploaderName) + "-" + YYYYMMDD-HHMMSS (UTC).
func FolderSegment(uploaderName string, uploadTime time.Time) string {
	return Sanitize(uploaderName) + "-" + uploadTime.UTC().Format(folderTimeLayout)
}
