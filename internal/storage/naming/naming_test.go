package naming

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

// allowedSegment — допустимая форма результата Sanitize.
var allowedSegment = regexp.MustCompile(`^[a-z0-9-]+$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"простое имя", "Jane Smith", "jane-smith"},
		{"нижний регистр", "ALICE", "alice"},
		{"цифры сохраняются", "user 42", "user-42"},
		{"серии пробелов", "a   b", "a-b"},
		{"подчёркивания и точки", "j_doe.jr", "j-doe-jr"},
		{"повторные дефисы", "a---b", "a-b"},
		{"крайние разделители", "  --name--  ", "name"},
		{"спецсимволы отбрасываются", "o'brien & sons!", "obrien-sons"},
		{"path traversal", "../../etc/passwd", "etc-passwd"},
		{"слэши", "a/b\\c", "a-b-c"},
		{"кириллица отбрасывается", "Иван Петров", FallbackSegment},
		{"только emoji", "🙂🙂🙂", FallbackSegment},
		{"пустая строка", "", FallbackSegment},
		{"только пробелы", "   ", FallbackSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.raw)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, ожидалось %q", tt.raw, got, tt.want)
			}
			if !allowedSegment.MatchString(got) {
				t.Errorf("Sanitize(%q) = %q не соответствует ^[a-z0-9-]+$", tt.raw, got)
			}
		})
	}
}

func TestSanitize_LengthLimit(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := Sanitize(long)
	if len(got) > MaxSegmentLength {
		t.Errorf("длина %d превышает предел %d", len(got), MaxSegmentLength)
	}

	// Обрезка не должна оставлять дефис на конце
	edge := strings.Repeat("a", MaxSegmentLength-1) + "-b"
	got = Sanitize(edge)
	if strings.HasSuffix(got, "-") {
		t.Errorf("результат %q заканчивается дефисом после обрезки", got)
	}
}

func TestFolderSegment(t *testing.T) {
	uploadTime := time.Date(2025, 9, 25, 14, 42, 30, 0, time.UTC)

	got := FolderSegment("Jane Smith", uploadTime)
	want := "jane-smith-20250925-144230"
	if got != want {
		t.Errorf("FolderSegment = %q, ожидалось %q", got, want)
	}
}

func TestFolderSegment_TimeIsUTC(t *testing.T) {
	// Время в другой зоне приводится к UTC
	msk := time.FixedZone("MSK", 3*3600)
	uploadTime := time.Date(2025, 9, 25, 17, 42, 30, 0, msk)

	got := FolderSegment("jane", uploadTime)
	want := "jane-20250925-144230"
	if got != want {
		t.Errorf("FolderSegment = %q, ожидалось %q (UTC)", got, want)
	}
}

func TestFolderSegment_AnonymousUploader(t *testing.T) {
	uploadTime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	got := FolderSegment("", uploadTime)
	want := FallbackSegment + "-20250102-030405"
	if got != want {
		t.Errorf("FolderSegment = %q, ожидалось %q", got, want)
	}
}
