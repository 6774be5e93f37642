// Пакет server — HTTP-сервер snapdrop с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bigkaa/snapdrop/internal/api/handlers"
	"github.com/bigkaa/snapdrop/internal/api/middleware"
	"github.com/bigkaa/snapdrop/internal/config"
)

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Upload *handlers.UploadHandler
	Serve  *handlers.ServeHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
	Auth   *middleware.AdminAuth
}

// Server — HTTP-сервер snapdrop.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler)

	// Публичные endpoints
	router.Post("/api/upload", h.Upload.Upload)
	router.Get("/api/files/{id}", h.Serve.ServeFile)
	router.Get("/api/thumbnail/{id}", h.Serve.ServeFile)

	// Административные endpoints
	router.Post("/api/admin/login", h.Admin.Login)
	router.Post("/api/admin/logout", h.Admin.Logout)
	router.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireAdmin)
		r.Get("/api/admin/files", h.Admin.ListFiles)
		r.Delete("/api/admin/files/{id}", h.Admin.DeleteFile)
		r.Get("/api/admin/info", h.Admin.Info)
		r.Post("/api/admin/integrity", h.Admin.RunIntegrity)
	})

	// Health и метрики
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
		// Тело запроса и ответа не лимитируются по времени:
		// загрузка и выдача файлов в гигабайты не укладываются
		// в обычные таймауты
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// SD_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
