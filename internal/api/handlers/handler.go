// handler.go — основной обработчик API Linkboard.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
	"github.com/bigkaa/golinkboard/internal/service"
)

// APIHandler — основной обработчик API Linkboard.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health *HealthHandler
	state  *service.StateService
	labels *service.LabelService

	// directory — nil при отключённой аутентификации:
	// операции каталога отвечают 501.
	directory *service.DirectoryService

	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	state *service.StateService,
	directory *service.DirectoryService,
	labels *service.LabelService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		state:     state,
		directory: directory,
		labels:    labels,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError транслирует ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и отвечают 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrInvalidJSON):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeInvalidJSON, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Недостаточно прав")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrAuthDisabled):
		apierrors.AuthDisabled(w)
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Error("Keycloak недоступен", "op", op, "error", err)
		apierrors.IDPUnavailable(w, "Identity Provider недоступен")
	default:
		h.logger.Error("Внутренняя ошибка", "op", op, "error", err)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// queryInt читает целочисленный query-параметр с значением по умолчанию.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
