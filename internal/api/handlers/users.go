// users.go — обработчики /admin/identity/users: управление
// пользователями каталога Keycloak. Все операции доступны
// только администратору.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
)

// ListUsers — GET /admin/identity/users?search=&page=&pageSize=
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	page, err := h.directory.ListUsers(r.Context(),
		r.URL.Query().Get("search"),
		queryInt(r, "page", 1),
		queryInt(r, "pageSize", 20),
	)
	if err != nil {
		h.writeServiceError(w, err, "users.list")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// userCreateRequest — тело POST /admin/identity/users.
type userCreateRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Groups   []string `json:"groups"`
}

// CreateUser — POST /admin/identity/users.
// Создаёт пользователя с постоянным паролем и членством в группах.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	var req userCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	user, err := h.directory.CreateUser(r.Context(), req.Username, req.Email, req.Password, req.Groups)
	if err != nil {
		h.writeServiceError(w, err, "users.create")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// DeleteUser — DELETE /admin/identity/users/{id}.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	if err := h.directory.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, "users.delete")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// userUpdateRequest — тело PATCH /admin/identity/users/{id}.
// Оба поля опциональны: groups приводит членство к полному набору,
// password сбрасывает пароль.
type userUpdateRequest struct {
	Groups   *[]string `json:"groups,omitempty"`
	Password *string   `json:"password,omitempty"`
}

// userUpdateResponse — итог обновления пользователя.
type userUpdateResponse struct {
	Groups []string `json:"groups,omitempty"`
}

// UpdateUser — PATCH /admin/identity/users/{id}.
// Сверка членства (полная замена набора групп) и/или смена пароля.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Groups == nil && req.Password == nil {
		apierrors.ValidationError(w, "Тело запроса должно содержать groups и/или password")
		return
	}

	id := chi.URLParam(r, "id")
	resp := userUpdateResponse{}

	if req.Password != nil {
		if err := h.directory.SetPassword(r.Context(), id, *req.Password); err != nil {
			h.writeServiceError(w, err, "users.password")
			return
		}
	}

	if req.Groups != nil {
		names, err := h.directory.ReconcileUserGroups(r.Context(), id, *req.Groups)
		if err != nil {
			h.writeServiceError(w, err, "users.groups")
			return
		}
		if names == nil {
			names = []string{}
		}
		resp.Groups = names
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUserGroups — GET /admin/identity/users/{id}/groups.
func (h *APIHandler) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	groups, err := h.directory.UserGroups(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "users.user_groups")
		return
	}

	writeJSON(w, http.StatusOK, groups)
}
