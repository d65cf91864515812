// state.go — обработчики /state: чтение, сохранение и удаление
// состояния профиля дашборда. Профиль выбирается query-параметром key;
// без него используется общий профиль default.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
	"github.com/bigkaa/golinkboard/internal/service"
)

// maxStateSize — ограничение размера документа состояния (1 МиБ).
const maxStateSize = 1 << 20

// GetState — GET /state?key=...
// Возвращает документ профиля (200) или 204, если профиль не сохранён.
// Состояние персонально — кэширование запрещено.
func (h *APIHandler) GetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	doc, err := h.state.Get(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		// Несохранённый профиль — не ошибка: фронтенд начинает с пустого
		if errors.Is(err, service.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeServiceError(w, err, "state.get")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// okResponse — подтверждение успешной записи.
type okResponse struct {
	OK bool `json:"ok"`
}

// PutState — PUT /state?key=...
// Сохраняет документ профиля (upsert). Тело — произвольный валидный JSON.
func (h *APIHandler) PutState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStateSize+1))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения тела запроса")
		return
	}
	if len(body) > maxStateSize {
		apierrors.ValidationError(w, "Документ слишком большой")
		return
	}

	if err := h.state.Put(r.Context(), r.URL.Query().Get("key"), json.RawMessage(body)); err != nil {
		h.writeServiceError(w, err, "state.put")
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// DeleteState — DELETE /state?key=...
// Удаляет профиль. Ключ обязателен, права проверяются в сервисе:
// свой профиль, профиль своей группы или администратор.
func (h *APIHandler) DeleteState(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Delete(r.Context(), r.URL.Query().Get("key")); err != nil {
		h.writeServiceError(w, err, "state.delete")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
