// groups.go — обработчики /admin/identity/groups: управление группами
// каталога Keycloak. Все операции доступны только администратору.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
)

// requireDirectoryAdmin проверяет права администратора и доступность
// каталога. Возвращает false, если ответ уже записан.
func (h *APIHandler) requireDirectoryAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.directory == nil {
		apierrors.AuthDisabled(w)
		return false
	}
	if !h.state.IsAdmin(r.Context()) {
		apierrors.Forbidden(w, "Недостаточно прав: требуется группа администраторов")
		return false
	}
	return true
}

// groupRequest — тело запросов создания и переименования группы.
type groupRequest struct {
	Name string `json:"name"`
}

// ListGroups — GET /admin/identity/groups.
func (h *APIHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	groups, err := h.directory.ListGroups(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "groups.list")
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

// CreateGroup — POST /admin/identity/groups.
func (h *APIHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	group, err := h.directory.CreateGroup(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, err, "groups.create")
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// RenameGroup — PATCH /admin/identity/groups/{id}.
func (h *APIHandler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.directory.RenameGroup(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		h.writeServiceError(w, err, "groups.rename")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteGroup — DELETE /admin/identity/groups/{id}?target=...
// target — ID или имя целевой группы: участники переносятся
// в неё до удаления исходной.
func (h *APIHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if !h.requireDirectoryAdmin(w, r) {
		return
	}

	id := chi.URLParam(r, "id")
	target := r.URL.Query().Get("target")

	if err := h.directory.DeleteGroup(r.Context(), id, target); err != nil {
		h.writeServiceError(w, err, "groups.delete")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
