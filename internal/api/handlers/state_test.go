package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bigkaa/golinkboard/internal/identity"
	"github.com/bigkaa/golinkboard/internal/scope"
	"github.com/bigkaa/golinkboard/internal/service"
	"github.com/bigkaa/golinkboard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestHandler собирает APIHandler с файловым хранилищем
// и без каталога Keycloak.
func newTestHandler(t *testing.T, authEnabled bool) *APIHandler {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("создание FileStore: %v", err)
	}
	t.Cleanup(st.Close)

	gate := scope.NewGate("devops")
	stateSvc := service.NewStateService(st, gate, authEnabled, testLogger())
	labelSvc := service.NewLabelService(nil, testLogger())
	health := NewHealthHandler(nil, nil)

	return NewAPIHandler(health, stateSvc, nil, labelSvc, testLogger())
}

func adminContext() context.Context {
	return identity.WithIdentity(context.Background(), &identity.Identity{
		Subject:  "admin-1",
		Username: "admin",
		Groups:   []string{"/devops"},
	})
}

func userContext(subject string) context.Context {
	return identity.WithIdentity(context.Background(), &identity.Identity{
		Subject:  subject,
		Username: "user",
		Groups:   []string{"/viewers"},
	})
}

func TestGetStateEmpty(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	h.GetState(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("статус %d, хотели 204", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, хотели no-store", cc)
	}
}

func TestPutGetStateRoundTrip(t *testing.T) {
	h := newTestHandler(t, true)
	doc := `{"links":[{"title":"wiki","url":"https://wiki.local"}]}`

	req := httptest.NewRequest(http.MethodPut, "/state?key=user:u-1", strings.NewReader(doc))
	rec := httptest.NewRecorder()
	h.PutState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("PUT статус %d, тело %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("тело PUT = %s, хотели ok:true", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/state?key=user:u-1", nil)
	rec = httptest.NewRecorder()
	h.GetState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET статус %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != doc {
		t.Errorf("тело = %s, хотели %s", rec.Body.String(), doc)
	}
}

func TestPutStateInvalidJSON(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodPut, "/state", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	h.PutState(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус %d, хотели 400", rec.Code)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("разбор тела ошибки: %v", err)
	}
	if body.Error.Code != "invalid_json" {
		t.Errorf("code = %q, хотели invalid_json", body.Error.Code)
	}
}

func TestDeleteStateRequiresKey(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodDelete, "/state", nil).
		WithContext(adminContext())
	rec := httptest.NewRecorder()
	h.DeleteState(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус %d, хотели 400", rec.Code)
	}
}

func TestDeleteStateForbidden(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodDelete, "/state?key=user:u-1", nil).
		WithContext(userContext("u-2"))
	rec := httptest.NewRecorder()
	h.DeleteState(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("статус %d, хотели 403", rec.Code)
	}
}

func TestDeleteStateAuthDisabled(t *testing.T) {
	h := newTestHandler(t, false)

	req := httptest.NewRequest(http.MethodDelete, "/state?key=user:u-1", nil).
		WithContext(adminContext())
	rec := httptest.NewRecorder()
	h.DeleteState(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("статус %d, хотели 501", rec.Code)
	}
}

// newLocalOnlyHandler собирает APIHandler с отключённой персистентностью
// (LB_PERSIST_DRIVER=""), аутентификация настроена.
func newLocalOnlyHandler(t *testing.T) *APIHandler {
	t.Helper()

	gate := scope.NewGate("devops")
	stateSvc := service.NewStateService(store.NewNoopStore(), gate, true, testLogger())
	labelSvc := service.NewLabelService(nil, testLogger())

	return NewAPIHandler(NewHealthHandler(nil, nil), stateSvc, nil, labelSvc, testLogger())
}

func TestStateLocalOnlyMode(t *testing.T) {
	h := newLocalOnlyHandler(t)

	// PUT — молчаливый успех: состояние хранит клиент
	req := httptest.NewRequest(http.MethodPut, "/state?key=user:42", strings.NewReader(`{"title":"wiki"}`))
	rec := httptest.NewRecorder()
	h.PutState(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT статус %d, тело %s", rec.Code, rec.Body.String())
	}

	// GET ведёт себя как пустое хранилище
	req = httptest.NewRequest(http.MethodGet, "/state?key=user:42", nil)
	rec = httptest.NewRecorder()
	h.GetState(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("GET статус %d, хотели 204", rec.Code)
	}

	// DELETE своего профиля — тоже успех
	req = httptest.NewRequest(http.MethodDelete, "/state?key=user:42", nil).
		WithContext(userContext("42"))
	rec = httptest.NewRecorder()
	h.DeleteState(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE статус %d, хотели 204", rec.Code)
	}
}

func TestListKeysWithLabels(t *testing.T) {
	h := newTestHandler(t, true)

	// Сохраняем два профиля
	for _, key := range []string{"user:12345678-abcd", "group:backend"} {
		req := httptest.NewRequest(http.MethodPut, "/state?key="+key, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.PutState(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("PUT %s: статус %d", key, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/keys", nil).
		WithContext(adminContext())
	rec := httptest.NewRecorder()
	h.ListKeys(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, тело %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Items []struct {
			Key   string `json:"key"`
			Label string `json:"label"`
		} `json:"items"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("total = %d, хотели 2", resp.Total)
	}

	labels := map[string]string{}
	for _, item := range resp.Items {
		labels[item.Key] = item.Label
	}
	// Каталог недоступен — подпись пользователя строится из усечённого ID
	if labels["user:12345678-abcd"] != "user:12345678" {
		t.Errorf("подпись пользователя = %q", labels["user:12345678-abcd"])
	}
	if labels["group:backend"] != "backend" {
		t.Errorf("подпись группы = %q", labels["group:backend"])
	}
}

func TestListKeysForbidden(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/admin/keys", nil).
		WithContext(userContext("u-1"))
	rec := httptest.NewRecorder()
	h.ListKeys(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("статус %d, хотели 403", rec.Code)
	}
}

func TestMeAnonymous(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}

	var resp struct {
		Authenticated bool   `json:"authenticated"`
		ProfileKey    string `json:"profileKey"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Authenticated {
		t.Error("аноним помечен аутентифицированным")
	}
	if resp.ProfileKey != "default" {
		t.Errorf("profileKey = %q, хотели default", resp.ProfileKey)
	}
}

func TestMeAuthenticated(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/me", nil).
		WithContext(adminContext())
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	var resp struct {
		Authenticated bool   `json:"authenticated"`
		IsAdmin       bool   `json:"isAdmin"`
		ProfileKey    string `json:"profileKey"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if !resp.Authenticated || !resp.IsAdmin {
		t.Errorf("resp = %+v, хотели authenticated администратора", resp)
	}
	if resp.ProfileKey != "user:admin-1" {
		t.Errorf("profileKey = %q", resp.ProfileKey)
	}
}

func TestDirectoryEndpointsAuthDisabled(t *testing.T) {
	h := newTestHandler(t, false)

	req := httptest.NewRequest(http.MethodGet, "/admin/identity/groups", nil).
		WithContext(adminContext())
	rec := httptest.NewRecorder()
	h.ListGroups(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("статус %d, хотели 501", rec.Code)
	}
}

func TestConvertEncoding(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodPost, "/encoding/convert", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	h.ConvertEncoding(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, тело %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Encoding string          `json:"encoding"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if string(resp.Data) != `{"a":1}` {
		t.Errorf("data = %s", resp.Data)
	}
}

func TestProfileLabel(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/profile/label?key=group:backend", nil)
	rec := httptest.NewRecorder()
	h.ProfileLabel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}

	var resp struct {
		Key   string `json:"key"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Key != "group:backend" || resp.Label != "backend" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthLive(t *testing.T) {
	h := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "linkboard" {
		t.Errorf("resp = %+v", resp)
	}
}
