// Пакет server — HTTP-сервер Linkboard с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/golinkboard/internal/api/handlers"
	"github.com/bigkaa/golinkboard/internal/api/middleware"
	"github.com/bigkaa/golinkboard/internal/config"
	"github.com/bigkaa/golinkboard/internal/identity"
	"github.com/bigkaa/golinkboard/internal/keycloak"
)

// Server — HTTP-сервер Linkboard.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// auth может быть nil — тогда все запросы анонимны (аутентификация
// отключена, права проверяет сервисный слой).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, auth *identity.Authenticator) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Identity middleware с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if auth != nil {
		router.Use(authWithExclusions(auth, "/health/", "/metrics"))
	}

	// Health и метрики
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	// Состояние дашборда, субъект запроса, подписи, импорт
	router.Get("/state", handler.GetState)
	router.Put("/state", handler.PutState)
	router.Delete("/state", handler.DeleteState)
	router.Get("/me", handler.Me)
	router.Get("/profile/label", handler.ProfileLabel)
	router.Post("/encoding/convert", handler.ConvertEncoding)

	// Административные операции
	router.Route("/admin", func(r chi.Router) {
		r.Get("/keys", handler.ListKeys)
		r.Post("/state", handler.AdminPutState)
		r.Delete("/state", handler.AdminDeleteState)

		r.Route("/identity", func(r chi.Router) {
			r.Get("/groups", handler.ListGroups)
			r.Post("/groups", handler.CreateGroup)
			r.Patch("/groups/{id}", handler.RenameGroup)
			r.Delete("/groups/{id}", handler.DeleteGroup)

			r.Get("/users", handler.ListUsers)
			r.Post("/users", handler.CreateUser)
			r.Patch("/users/{id}", handler.UpdateUser)
			r.Delete("/users/{id}", handler.DeleteUser)
			r.Get("/users/{id}/groups", handler.GetUserGroups)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// authWithExclusions оборачивает identity middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без токена.
func authWithExclusions(auth *identity.Authenticator, excludePrefixes ...string) func(http.Handler) http.Handler {
	authMiddleware := auth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			authMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
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

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}

// GroupPathProvider адаптирует keycloak.Client к identity.GroupProvider:
// пути групп пользователя запрашиваются через Admin API, когда токен
// не содержит claim groups.
type GroupPathProvider struct {
	client *keycloak.Client
}

// NewGroupPathProvider создаёт адаптер каталога групп.
func NewGroupPathProvider(client *keycloak.Client) *GroupPathProvider {
	return &GroupPathProvider{client: client}
}

// UserGroupPaths возвращает пути групп пользователя.
func (p *GroupPathProvider) UserGroupPaths(ctx context.Context, userID string) ([]string, error) {
	groups, err := p.client.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.Path != "" {
			paths = append(paths, g.Path)
		} else {
			paths = append(paths, "/"+g.Name)
		}
	}
	return paths, nil
}
