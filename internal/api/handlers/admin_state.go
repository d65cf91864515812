// admin_state.go — административные обработчики состояний:
// обзор сохранённых профилей и операции над произвольными ключами.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
)

// keyItem — элемент обзора сохранённых профилей.
type keyItem struct {
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// keyListResponse — ответ GET /admin/keys.
type keyListResponse struct {
	Items []keyItem `json:"items"`
	Total int       `json:"total"`
}

// ListKeys — GET /admin/keys.
// Возвращает все сохранённые профили с отображаемыми подписями.
// Доступ: администратор. При отключённой аутентификации — пустой список.
func (h *APIHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.state.ListKeys(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "admin.keys")
		return
	}

	items := make([]keyItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, keyItem{
			Key:       k.Key,
			Label:     h.labels.KeyLabel(r.Context(), k.Key),
			UpdatedAt: k.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, keyListResponse{Items: items, Total: len(items)})
}

// adminStateRequest — тело POST /admin/state.
type adminStateRequest struct {
	Key     string          `json:"key"`
	Content json.RawMessage `json:"content"`
}

// AdminPutState — POST /admin/state.
// Сохраняет документ произвольного профиля.
// Доступ: администратор.
func (h *APIHandler) AdminPutState(w http.ResponseWriter, r *http.Request) {
	var req adminStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.state.AdminPut(r.Context(), req.Key, req.Content); err != nil {
		h.writeServiceError(w, err, "admin.state.put")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminDeleteState — DELETE /admin/state?key=...
// Удаляет произвольный профиль.
// Доступ: администратор.
func (h *APIHandler) AdminDeleteState(w http.ResponseWriter, r *http.Request) {
	if err := h.state.AdminDelete(r.Context(), r.URL.Query().Get("key")); err != nil {
		h.writeServiceError(w, err, "admin.state.delete")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
