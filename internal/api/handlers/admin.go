// admin.go — обработчики административных endpoints.
// Вход по паролю, листинг и удаление файлов, информация о хранилище,
// ручной запуск проверки целостности.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/snapdrop/internal/api/errors"
	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/config"
	"github.com/bigkaa/snapdrop/internal/domain/model"
	"github.com/bigkaa/snapdrop/internal/service"
	"github.com/bigkaa/snapdrop/internal/storage/metastore"
)

// IntegrityRunner — интерфейс запуска проверки целостности.
// Позволяет тестировать handler без полного IntegrityService.
type IntegrityRunner interface {
	// RunOnce выполняет один цикл проверки.
	// Возвращает отчёт и флаг "уже выполняется".
	RunOnce(ctx context.Context) (*service.IntegrityReport, bool)
}

// AdminHandler — обработчик административных endpoints.
type AdminHandler struct {
	cfg       *config.Config
	auth      *middleware.AdminAuth
	store     *metastore.Store
	deletion  *service.DeletionService
	integrity IntegrityRunner
	logger    *slog.Logger
}

// NewAdminHandler создаёт обработчик административных endpoints.
// integrity может быть nil — тогда ручной запуск проверки недоступен.
func NewAdminHandler(
	cfg *config.Config,
	auth *middleware.AdminAuth,
	store *metastore.Store,
	deletion *service.DeletionService,
	integrity IntegrityRunner,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		cfg:       cfg,
		auth:      auth,
		store:     store,
		deletion:  deletion,
		integrity: integrity,
		logger:    logger.With(slog.String("component", "admin_handler")),
	}
}

// loginRequest — тело POST /api/admin/login.
type loginRequest struct {
	Password string `json:"password"`
}

// Login обрабатывает POST /api/admin/login.
// При верном пароле выдаёт сессионный cookie.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: ожидается JSON с полем password")
		return
	}

	if !h.auth.CheckPassword(req.Password) {
		h.logger.Warn("Неудачная попытка входа администратора",
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.Unauthorized(w, "Неверный пароль")
		return
	}

	token, err := h.auth.IssueToken(time.Now().UTC())
	if err != nil {
		h.logger.Error("Ошибка выдачи сессионного токена", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка создания сессии")
		return
	}
	h.auth.SetSessionCookie(w, token)

	h.logger.Info("Администратор вошёл в систему",
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Logout обрабатывает POST /api/admin/logout: сбрасывает cookie сессии.
func (h *AdminHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.auth.ClearSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// fileListResponse — ответ GET /api/admin/files.
type fileListResponse struct {
	Total int                 `json:"total"`
	Files []*model.FileRecord `json:"files"`
}

// ListFiles обрабатывает GET /api/admin/files.
// Записи отдаются от новых к старым.
func (h *AdminHandler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	files := h.store.All()
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].UploadTime.After(files[j].UploadTime.Time)
	})

	resp := fileListResponse{Total: len(files), Files: files}
	if resp.Files == nil {
		resp.Files = []*model.FileRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// DeleteFile обрабатывает DELETE /api/admin/files/{id}.
func (h *AdminHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.ValidationError(w, "Идентификатор файла не указан")
		return
	}

	if err := h.deletion.Delete(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		h.logger.Error("Ошибка удаления файла",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка удаления файла")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// storageInfoResponse — ответ GET /api/admin/info.
type storageInfoResponse struct {
	Version      string         `json:"version"`
	Backend      string         `json:"backend"`
	FilesTotal   int            `json:"files_total"`
	FilesByType  map[string]int `json:"files_by_type"`
	StorageBytes int64          `json:"storage_bytes"`
	// Дисковая ёмкость uploads root (только локальный backend)
	DiskTotalBytes     int64 `json:"disk_total_bytes,omitempty"`
	DiskUsedBytes      int64 `json:"disk_used_bytes,omitempty"`
	DiskAvailableBytes int64 `json:"disk_available_bytes,omitempty"`
}

// Info обрабатывает GET /api/admin/info.
func (h *AdminHandler) Info(w http.ResponseWriter, _ *http.Request) {
	files := h.store.All()

	resp := storageInfoResponse{
		Version:     config.Version,
		Backend:     h.cfg.Backend,
		FilesTotal:  len(files),
		FilesByType: map[string]int{},
	}
	for _, rec := range files {
		resp.FilesByType[string(rec.FileType)]++
		resp.StorageBytes += rec.FileSize
	}

	if h.cfg.Backend == config.BackendLocal {
		total, used, available, err := getDiskUsage(h.cfg.UploadsDir)
		if err != nil {
			h.logger.Warn("Ошибка получения дисковой ёмкости",
				slog.String("error", err.Error()),
			)
		} else {
			resp.DiskTotalBytes = total
			resp.DiskUsedBytes = used
			resp.DiskAvailableBytes = available
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// RunIntegrity обрабатывает POST /api/admin/integrity.
// Запускает синхронную проверку целостности и возвращает отчёт.
// Если проверка уже выполняется — 409 SCAN_IN_PROGRESS.
func (h *AdminHandler) RunIntegrity(w http.ResponseWriter, r *http.Request) {
	if h.integrity == nil {
		apierrors.WriteError(w, http.StatusServiceUnavailable, apierrors.CodeInternalError,
			"Проверка целостности не настроена")
		return
	}

	report, inProgress := h.integrity.RunOnce(r.Context())
	if inProgress {
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeScanInProgress,
			"Проверка целостности уже выполняется")
		return
	}
	if report.Issues == nil {
		report.Issues = []service.IntegrityIssue{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}
