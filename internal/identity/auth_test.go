package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-lb"

const testIssuer = "https://keycloak.test/realms/linkboard"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockGroupProvider — мок GroupProvider.
type mockGroupProvider struct {
	paths map[string][]string
	calls int
}

func (m *mockGroupProvider) UserGroupPaths(_ context.Context, userID string) ([]string, error) {
	m.calls++
	return m.paths[userID], nil
}

// newTestAuthenticator создаёт Authenticator для тестов.
func newTestAuthenticator(t *testing.T, key *rsa.PrivateKey, opts Options) *Authenticator {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	opts.Issuer = testIssuer
	opts.AdminGroup = "devops"
	return NewWithKeyfunc(kf, opts, testLogger())
}

// generateToken генерирует JWT пользователя.
func generateToken(t *testing.T, key *rsa.PrivateKey, sub, username, email string, groups []string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": username,
		"name":               "Alice Admin",
		"email":              email,
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if len(groups) > 0 {
		claims["groups"] = groups
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// TestAuth_ValidToken — валидный JWT даёт Identity в контексте.
func TestAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: true})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			t.Fatal("identity не найдена в контексте")
		}
		if id.Subject != "user-123" {
			t.Errorf("ожидался sub=user-123, получен %s", id.Subject)
		}
		if id.Username != "alice" {
			t.Errorf("ожидался username=alice, получен %s", id.Username)
		}
		if id.FullName != "Alice Admin" {
			t.Errorf("ожидался name=Alice Admin, получен %s", id.FullName)
		}
		if len(id.Groups) != 1 || id.Groups[0] != "/devops" {
			t.Errorf("неожиданные группы: %v", id.Groups)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "user-123", "alice", "alice@test.com", []string{"/devops"}, false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

// TestAuth_MissingTokenRequired — без токена при required=true.
func TestAuth_MissingTokenRequired(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: true})
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestAuth_MissingTokenOptional — без токена при required=false запрос анонимный.
func TestAuth_MissingTokenOptional(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: false})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := FromContext(r.Context()); id != nil {
			t.Errorf("ожидался анонимный запрос, получена identity: %+v", id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestAuth_ExpiredToken — просроченный токен отклоняется даже при required=false.
func TestAuth_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: false})
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tokenStr := generateToken(t, key, "user-123", "alice", "alice@test.com", nil, true)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestAuth_InvalidFormat — некорректный формат Authorization.
func TestAuth_InvalidFormat(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: true})
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty bearer", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/state", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestAuth_WrongIssuer — токен с неверным issuer.
func TestAuth_WrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: true})
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	claims := jwt.MapClaims{
		"sub": "user-123",
		"iss": "https://other-keycloak.test/realms/other",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestAuth_TestBypass — обход аутентификации для тестовых окружений.
func TestAuth_TestBypass(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestAuthenticator(t, key, Options{Required: true, TestBypass: true})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			t.Fatal("identity не найдена в контексте")
		}
		if id.Username != "testuser" {
			t.Errorf("ожидался username=testuser, получен %s", id.Username)
		}
		if len(id.Groups) != 1 || id.Groups[0] != "/devops" {
			t.Errorf("неожиданные группы: %v", id.Groups)
		}
		w.WriteHeader(http.StatusOK)
	}))

	// Без Authorization header
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestAuth_GroupsFromAdminAPI — fallback групп через Admin API.
func TestAuth_GroupsFromAdminAPI(t *testing.T) {
	key := generateTestKey(t)
	provider := &mockGroupProvider{
		paths: map[string][]string{
			"user-123": {"/devops", "/viewers"},
		},
	}
	auth := newTestAuthenticator(t, key, Options{Required: true, Groups: provider})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			t.Fatal("identity не найдена")
		}
		if len(id.Groups) != 2 || id.Groups[0] != "/devops" {
			t.Errorf("неожиданные группы: %v", id.Groups)
		}
		w.WriteHeader(http.StatusOK)
	}))

	// Токен без groups claim
	tokenStr := generateToken(t, key, "user-123", "alice", "alice@test.com", nil, false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
	if provider.calls != 1 {
		t.Errorf("ожидался 1 вызов Admin API, было %d", provider.calls)
	}
}

// TestAuth_GroupsFromTokenSkipFallback — группы из токена, fallback не вызывается.
func TestAuth_GroupsFromTokenSkipFallback(t *testing.T) {
	key := generateTestKey(t)
	provider := &mockGroupProvider{
		paths: map[string][]string{"user-123": {"/other"}},
	}
	auth := newTestAuthenticator(t, key, Options{Required: true, Groups: provider})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "user-123", "alice", "alice@test.com", []string{"/devops"}, false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if provider.calls != 0 {
		t.Errorf("Admin API не должен вызываться, было %d вызовов", provider.calls)
	}
}

// TestAuth_GroupsFromUserinfo — fallback групп через userinfo endpoint.
func TestAuth_GroupsFromUserinfo(t *testing.T) {
	key := generateTestKey(t)

	userinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"sub":    "user-123",
			"groups": []string{"/viewers"},
		})
	}))
	defer userinfo.Close()

	auth := newTestAuthenticator(t, key, Options{Required: true, UserinfoURL: userinfo.URL})

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			t.Fatal("identity не найдена")
		}
		if len(id.Groups) != 1 || id.Groups[0] != "/viewers" {
			t.Errorf("неожиданные группы: %v", id.Groups)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tokenStr := generateToken(t, key, "user-123", "alice", "alice@test.com", nil, false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// --- Тесты context helpers ---

func TestFromContext_Empty(t *testing.T) {
	if id := FromContext(context.Background()); id != nil {
		t.Errorf("ожидался nil, получено %+v", id)
	}
}

func TestSubjectFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), &Identity{Subject: "user-123"})
	if sub := SubjectFromContext(ctx); sub != "user-123" {
		t.Errorf("ожидался user-123, получен %q", sub)
	}
	if sub := SubjectFromContext(context.Background()); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
}
