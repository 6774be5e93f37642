// serve.go — выдача файлов по id.
// GET /api/files/{id} и GET /api/thumbnail/{id}: локальные файлы
// отдаются напрямую (Range, If-Modified-Since — через http.ServeContent),
// объекты s3 — redirect на публичный URL.
package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/snapdrop/internal/api/errors"
	"github.com/bigkaa/snapdrop/internal/service"
)

// ServeHandler — обработчик выдачи файлов.
type ServeHandler struct {
	retrieval *service.RetrievalService
}

// NewServeHandler создаёт обработчик выдачи файлов.
func NewServeHandler(retrieval *service.RetrievalService) *ServeHandler {
	return &ServeHandler{retrieval: retrieval}
}

// ServeFile обрабатывает GET /api/files/{id} и GET /api/thumbnail/{id}.
// Thumbnail-вариант отдаёт тот же объект: отдельные превью не хранятся,
// клиент масштабирует сам.
func (h *ServeHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.ValidationError(w, "Идентификатор файла не указан")
		return
	}

	resolved, err := h.retrieval.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInconsistent) {
			// Рассинхронизация наружу неотличима от отсутствия файла
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	if resolved.RedirectURL != "" {
		http.Redirect(w, r, resolved.RedirectURL, http.StatusFound)
		return
	}
	defer resolved.Content.Close()

	contentType := mime.TypeByExtension(path.Ext(resolved.Record.StoredName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	// Локальный backend возвращает *os.File — поддерживаются
	// Range-запросы и условные заголовки
	if rs, ok := resolved.Content.(io.ReadSeeker); ok {
		http.ServeContent(w, r, resolved.Record.StoredName, resolved.Record.UploadTime.Time, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(resolved.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resolved.Content)
}
