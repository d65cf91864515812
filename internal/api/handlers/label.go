// label.go — обработчик /profile/label: человекочитаемая подпись
// ключа профиля. Публичный endpoint, всегда best-effort.
package handlers

import (
	"net/http"
)

// labelResponse — ответ GET /profile/label.
type labelResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ProfileLabel — GET /profile/label?key=K.
// Подпись строится из данных каталога; недоступный каталог —
// не ошибка, возвращается fallback-подпись.
func (h *APIHandler) ProfileLabel(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	writeJSON(w, http.StatusOK, labelResponse{
		Key:   key,
		Label: h.labels.KeyLabel(r.Context(), key),
	})
}
