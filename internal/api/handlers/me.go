// me.go — обработчик /me: информация о текущем субъекте запроса.
// Фронтенд использует её для выбора профиля и отображения меню.
package handlers

import (
	"net/http"

	"github.com/bigkaa/golinkboard/internal/identity"
	"github.com/bigkaa/golinkboard/internal/scope"
)

// meResponse — ответ GET /me.
type meResponse struct {
	Authenticated bool     `json:"authenticated"`
	Subject       string   `json:"subject,omitempty"`
	Username      string   `json:"username,omitempty"`
	FullName      string   `json:"fullName,omitempty"`
	Email         string   `json:"email,omitempty"`
	Groups        []string `json:"groups"`
	IsAdmin       bool     `json:"isAdmin"`
	// ProfileKey — ключ личного профиля субъекта
	ProfileKey string `json:"profileKey"`
	Label      string `json:"label"`
}

// Me — GET /me.
// Анонимный запрос — не ошибка: возвращается неаутентифицированный
// субъект с общим профилем default.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		writeJSON(w, http.StatusOK, meResponse{
			Groups:     []string{},
			ProfileKey: scope.DefaultKey,
			Label:      h.labels.KeyLabel(r.Context(), scope.DefaultKey),
		})
		return
	}

	groups := id.Groups
	if groups == nil {
		groups = []string{}
	}

	writeJSON(w, http.StatusOK, meResponse{
		Authenticated: true,
		Subject:       id.Subject,
		Username:      id.Username,
		FullName:      id.FullName,
		Email:         id.Email,
		Groups:        groups,
		IsAdmin:       h.state.IsAdmin(r.Context()),
		ProfileKey:    scope.UserKey(id.Subject),
		Label:         h.labels.KeyLabel(r.Context(), scope.UserKey(id.Subject)),
	})
}
