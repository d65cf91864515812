// auth.go — JWT middleware аутентификации через JWKS Keycloak.
// Извлекает Bearer token, валидирует подпись (RS256), формирует Identity.
// Группы берутся из claims токена; если клиент не настроен отдавать
// groups claim — fallback через userinfo endpoint, затем через Admin API.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/golinkboard/internal/api/errors"
)

// GroupProvider — источник групп пользователя из Admin API.
// Реализуется keycloak.Client (адаптером в пакете server).
type GroupProvider interface {
	// UserGroupPaths возвращает пути групп пользователя (вида /devops).
	UserGroupPaths(ctx context.Context, userID string) ([]string, error)
}

// sessionClaims — raw claims из Keycloak JWT.
type sessionClaims struct {
	jwt.RegisteredClaims
	// PreferredUsername — имя пользователя.
	PreferredUsername string `json:"preferred_username"`
	// Name — полное имя.
	Name string `json:"name"`
	// Email — электронная почта.
	Email string `json:"email"`
	// Groups — группы пользователя (требует groups mapper в Keycloak).
	Groups []string `json:"groups,omitempty"`
}

// Authenticator — middleware аутентификации запросов.
type Authenticator struct {
	jwks        keyfunc.Keyfunc
	logger      *slog.Logger
	issuer      string
	userinfoURL string
	jwtLeeway   time.Duration

	// required — отклонять запросы без валидного токена.
	// Иначе запрос без токена проходит анонимным.
	required bool

	// testBypass — подставлять синтетическую админскую личность
	// без проверки токена (ТОЛЬКО для тестовых окружений).
	testBypass bool
	adminGroup string

	groups     GroupProvider
	httpClient *http.Client
}

// Options — параметры создания Authenticator.
type Options struct {
	// JWKSURL — URL JWKS endpoint'а realm'а
	JWKSURL string
	// Issuer — ожидаемый issuer JWT
	Issuer string
	// UserinfoURL — URL userinfo endpoint'а (fallback групп)
	UserinfoURL string
	// JWTLeeway — допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// JWKSRefreshInterval — интервал фонового обновления ключей
	JWKSRefreshInterval time.Duration
	// Required — отклонять запросы без валидного токена
	Required bool
	// TestBypass — обход аутентификации (ТОЛЬКО для тестов)
	TestBypass bool
	// AdminGroup — группа администраторов (для синтетической личности)
	AdminGroup string
	// Groups — источник групп из Admin API (может быть nil)
	Groups GroupProvider
}

// New создаёт Authenticator с JWKS из Keycloak.
// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
func New(opts Options, logger *slog.Logger) (*Authenticator, error) {
	storage, err := jwkset.NewStorageFromHTTP(opts.JWKSURL, jwkset.HTTPClientStorageOptions{
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.JWKSRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", opts.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return newAuthenticator(k, opts, logger), nil
}

// NewWithKeyfunc создаёт Authenticator с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewWithKeyfunc(kf keyfunc.Keyfunc, opts Options, logger *slog.Logger) *Authenticator {
	return newAuthenticator(kf, opts, logger)
}

func newAuthenticator(kf keyfunc.Keyfunc, opts Options, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		jwks:        kf,
		logger:      logger.With(slog.String("component", "auth")),
		issuer:      opts.Issuer,
		userinfoURL: opts.UserinfoURL,
		jwtLeeway:   opts.JWTLeeway,
		required:    opts.Required,
		testBypass:  opts.TestBypass,
		adminGroup:  opts.AdminGroup,
		groups:      opts.Groups,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Middleware возвращает HTTP middleware аутентификации.
// Валидный токен — Identity в контексте. Запрос без токена проходит
// анонимным, если required не установлен, иначе 401. Невалидный
// токен — всегда 401.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Обход для тестовых окружений
			if a.testBypass {
				ctx := WithIdentity(r.Context(), a.syntheticIdentity())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if a.required {
					apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString := parts[1]

			// Парсинг и валидация JWT через JWKS
			rawClaims := &sessionClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(a.jwtLeeway),
			}
			if a.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, a.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				if err != nil {
					a.logger.Debug("JWT валидация не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			id := a.buildIdentity(r.Context(), rawClaims, tokenString)
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// syntheticIdentity возвращает тестовую админскую личность.
func (a *Authenticator) syntheticIdentity() *Identity {
	return &Identity{
		Subject:  "00000000-0000-0000-0000-000000000001",
		Username: "testuser",
		FullName: "Test User",
		Email:    "testuser@example.com",
		Groups:   []string{"/" + a.adminGroup},
	}
}

// buildIdentity формирует Identity из claims токена.
// Группы: claim токена → userinfo endpoint → Admin API.
func (a *Authenticator) buildIdentity(ctx context.Context, raw *sessionClaims, tokenString string) *Identity {
	id := &Identity{
		Subject:  raw.Subject,
		Username: raw.PreferredUsername,
		FullName: raw.Name,
		Email:    raw.Email,
		Groups:   raw.Groups,
	}

	if len(id.Groups) == 0 && a.userinfoURL != "" {
		id.Groups = a.groupsFromUserinfo(ctx, tokenString)
	}

	if len(id.Groups) == 0 && a.groups != nil {
		paths, err := a.groups.UserGroupPaths(ctx, id.Subject)
		if err != nil {
			a.logger.Warn("Не удалось получить группы через Admin API",
				slog.String("user_id", id.Subject),
				slog.String("error", err.Error()),
			)
		} else {
			id.Groups = paths
		}
	}

	return id
}

// groupsFromUserinfo запрашивает группы через userinfo endpoint
// с токеном пользователя. Ошибка — не фатальна, возвращается nil.
func (a *Authenticator) groupsFromUserinfo(ctx context.Context, tokenString string) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userinfoURL, http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Debug("userinfo недоступен", slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var info struct {
		Groups []string `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil
	}
	return info.Groups
}
