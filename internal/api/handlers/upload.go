// upload.go — обработчик POST /api/upload.
// Публичный endpoint анонимной загрузки. Multipart form:
// files (один или несколько), name (опционально), email (опционально).
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/snapdrop/internal/api/errors"
	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/service"
)

// multipartMemoryLimit — буфер ParseMultipartForm в памяти,
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20

// UploadHandler — обработчик загрузки файлов.
type UploadHandler struct {
	coordinator *service.UploadCoordinator
	// maxRequestBytes — лимит тела запроса целиком
	maxRequestBytes int64
}

// NewUploadHandler создаёт обработчик загрузки.
func NewUploadHandler(coordinator *service.UploadCoordinator, maxRequestBytes int64) *UploadHandler {
	return &UploadHandler{
		coordinator:     coordinator,
		maxRequestBytes: maxRequestBytes,
	}
}

// uploadResponse — ответ на batch загрузки.
type uploadResponse struct {
	// Folder — каталог сессии загрузки (пустой, если ни один файл не принят)
	Folder string `json:"folder,omitempty"`
	// Stored — записи принятых файлов
	Stored []*model.FileRecord `json:"stored"`
	// Failed — отказы по файлам
	Failed []service.FileFailure `json:"failed,omitempty"`
}

// Upload обрабатывает POST /api/upload.
// Batch принимается частично: 200 если принят хотя бы один файл,
// 400 если не принят ни один.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Тело запроса превышает лимит %d байт", h.maxRequestBytes))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		apierrors.ValidationError(w, "Поле 'files' обязательно: не передано ни одного файла")
		return
	}

	params := service.IngestParams{
		UploaderName:  r.FormValue("name"),
		UploaderEmail: r.FormValue("email"),
	}

	var closers []interface{ Close() error }
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения части %q: %s", header.Filename, err.Error()))
			return
		}
		closers = append(closers, f)
		params.Files = append(params.Files, service.IngestFile{
			Reader:   f,
			Filename: header.Filename,
			Size:     header.Size,
		})
	}

	result, err := h.coordinator.Ingest(r.Context(), params)
	if err != nil {
		var allocErr *service.AllocationError
		if errors.As(err, &allocErr) {
			apierrors.WriteError(w, http.StatusInternalServerError, apierrors.CodeAllocationError,
				"Ошибка выделения каталога загрузки")
			return
		}
		apierrors.InternalError(w, "Ошибка сохранения загрузки")
		return
	}

	resp := uploadResponse{
		Folder: result.Folder,
		Stored: result.Stored,
		Failed: result.Failed,
	}
	if resp.Stored == nil {
		resp.Stored = []*model.FileRecord{}
	}

	status := http.StatusOK
	if len(result.Stored) == 0 {
		// Ни один файл не принят — причины по каждому в failed
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
