// client.go — HTTP-клиент к Keycloak Admin REST API.
// Аутентификация: Password Credentials flow административной учётной записи
// через клиент admin-cli realm'а master. Токен кэшируется,
// обновление за 30s до expiration.
// Операции: группы (список, создание, переименование, удаление, участники),
// пользователи (список, поиск, подсчёт, создание, удаление, пароль, группы).
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client — HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	baseURL       string // Базовый URL Keycloak (без trailing slash)
	realm         string // Имя целевого realm
	adminUser     string // Административная учётная запись
	adminPassword string // Пароль административной учётной записи

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент к Keycloak Admin REST API.
// baseURL — базовый URL Keycloak (например, https://keycloak.kryukov.lan).
// realm — целевой realm (например, linkboard).
// adminUser, adminPassword — credentials администратора realm'а master.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, adminUser, adminPassword string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		realm:         realm,
		adminUser:     adminUser,
		adminPassword: adminPassword,
		httpClient:    httpClient,
		logger:        logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
// Административная учётка живёт в realm master, а не в целевом realm.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/master/protocol/openid-connect/token", c.baseURL)
}

// adminBaseURL возвращает базовый URL Admin REST API для целевого realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	// Запрашиваем новый токен через Password Credentials flow
	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Keycloak токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Password Credentials flow через клиент admin-cli.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"client_id":  {"admin-cli"},
		"username":   {c.adminUser},
		"password":   {c.adminPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Keycloak вернул статус %d при запросе токена: %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Keycloak API вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Keycloak: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Keycloak API вернул статус %d (ожидался %d): %s",
			resp.StatusCode, expectedStatus, string(body))
	}

	return nil
}

// idFromLocation извлекает ID созданного ресурса из Location header.
// Keycloak отвечает 201 с Location вида .../groups/{id} или .../users/{id}.
func idFromLocation(resp *http.Response, op string) (string, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: Keycloak вернул статус %d: %s", op, resp.StatusCode, string(body))
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("%s: отсутствует Location header в ответе", op)
	}

	parts := strings.Split(location, "/")
	id := parts[len(parts)-1]
	if id == "" {
		return "", fmt.Errorf("%s: не удалось извлечь ID из Location: %s", op, location)
	}

	return id, nil
}

// --- Groups API ---

// ListGroups возвращает все группы realm верхнего уровня.
func (c *Client) ListGroups(ctx context.Context) ([]KeycloakGroup, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/groups", nil)
	if err != nil {
		return nil, err
	}

	var groups []KeycloakGroup
	if err := decodeResponse(resp, &groups); err != nil {
		return nil, fmt.Errorf("ListGroups: %w", err)
	}

	return groups, nil
}

// CreateGroup создаёт группу и возвращает её Keycloak ID.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	resp, err := c.doAuthorized(ctx, http.MethodPost, "/groups", groupRepresentation{Name: name})
	if err != nil {
		return "", err
	}

	return idFromLocation(resp, "CreateGroup")
}

// RenameGroup переименовывает группу.
func (c *Client) RenameGroup(ctx context.Context, id, name string) error {
	resp, err := c.doAuthorized(ctx, http.MethodPut, "/groups/"+id, groupRepresentation{Name: name})
	if err != nil {
		return err
	}

	return checkResponse(resp, http.StatusNoContent)
}

// DeleteGroup удаляет группу.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/groups/"+id, nil)
	if err != nil {
		return err
	}

	return checkResponse(resp, http.StatusNoContent)
}

// GroupMembers возвращает страницу участников группы.
func (c *Client) GroupMembers(ctx context.Context, groupID string, first, max int) ([]KeycloakUser, error) {
	path := fmt.Sprintf("/groups/%s/members?first=%d&max=%d", groupID, first, max)

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("GroupMembers: %w", err)
	}

	return users, nil
}

// --- Users API ---

// ListUsers возвращает пользователей realm с фильтрацией по поисковому запросу.
// query — строка поиска (по username, email, firstName, lastName).
// Если query пустой — возвращает всех.
func (c *Client) ListUsers(ctx context.Context, query string, first, max int) ([]KeycloakUser, error) {
	path := fmt.Sprintf("/users?first=%d&max=%d", first, max)
	if query != "" {
		path += "&search=" + url.QueryEscape(query)
	}

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}

	return users, nil
}

// CountUsers возвращает количество пользователей, попадающих под поиск.
// Тело ответа различается между версиями Keycloak: голое число или
// объект {"count": N}, поддерживаем оба варианта.
func (c *Client) CountUsers(ctx context.Context, query string) (int, error) {
	path := "/users/count"
	if query != "" {
		path += "?search=" + url.QueryEscape(query)
	}

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}

	var raw json.RawMessage
	if err := decodeResponse(resp, &raw); err != nil {
		return 0, fmt.Errorf("CountUsers: %w", err)
	}

	var count int
	if err := json.Unmarshal(raw, &count); err == nil {
		return count, nil
	}

	var obj countResponse
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("CountUsers: неожиданный формат ответа: %s", raw)
	}
	return obj.Count, nil
}

// GetUser возвращает пользователя по Keycloak ID.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/"+id, nil)
	if err != nil {
		return nil, err
	}

	var user KeycloakUser
	if err := decodeResponse(resp, &user); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	return &user, nil
}

// CreateUser создаёт пользователя и возвращает его Keycloak ID.
// Пользователь создаётся включённым, email помечается подтверждённым.
func (c *Client) CreateUser(ctx context.Context, username, email string) (string, error) {
	createReq := userCreateRequest{
		Username:      username,
		Email:         email,
		Enabled:       true,
		EmailVerified: true,
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/users", createReq)
	if err != nil {
		return "", err
	}

	return idFromLocation(resp, "CreateUser")
}

// DeleteUser удаляет пользователя.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/users/"+id, nil)
	if err != nil {
		return err
	}

	return checkResponse(resp, http.StatusNoContent)
}

// SetUserPassword устанавливает постоянный пароль пользователя.
func (c *Client) SetUserPassword(ctx context.Context, id, password string) error {
	cred := credentialRepresentation{
		Type:      "password",
		Value:     password,
		Temporary: false,
	}

	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+id+"/reset-password", cred)
	if err != nil {
		return err
	}

	return checkResponse(resp, http.StatusNoContent)
}

// UserGroups возвращает группы пользователя.
func (c *Client) UserGroups(ctx context.Context, userID string) ([]KeycloakGroup, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/"+userID+"/groups", nil)
	if err != nil {
		return nil, err
	}

	var groups []KeycloakGroup
	if err := decodeResponse(resp, &groups); err != nil {
		return nil, fmt.Errorf("UserGroups: %w", err)
	}

	return groups, nil
}

// AddUserToGroup добавляет пользователя в группу.
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+userID+"/groups/"+groupID, nil)
	if err != nil {
		return err
	}

	return checkResponse(resp, http.StatusNoContent)
}

// RemoveUserFromGroup удаляет пользователя из группы.
func (c *Client) RemoveUserFromGroup(ctx context.Context, userID, groupID string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/users/"+userID+"/groups/"+groupID, nil)
	if err != nil {
		return err
	}

	return checkResponse(resp, http.StatusNoContent)
}

// --- Readiness checker ---

// CheckReady проверяет доступность Keycloak через получение токена.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.getToken(ctx); err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", c.realm)
}
