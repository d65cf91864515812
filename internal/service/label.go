// label.go — отображаемые подписи профилей.
// Подпись пользователя строится из данных каталога: полное имя →
// email → username → усечённый ID. Ответы кэшируются в LRU с TTL,
// конкурентные запросы одного пользователя схлопываются singleflight.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/golinkboard/internal/scope"
)

// labelCacheSize — максимум записей кэша подписей.
const labelCacheSize = 1024

// labelCacheTTL — время жизни записи кэша подписей.
const labelCacheTTL = 5 * time.Minute

// LabelService — подписи профилей для отображения.
type LabelService struct {
	dir    Directory
	cache  *expirable.LRU[string, string]
	flight singleflight.Group
	logger *slog.Logger
}

// NewLabelService создаёт сервис подписей. dir может быть nil
// (аутентификация отключена) — подписи строятся без каталога.
func NewLabelService(dir Directory, logger *slog.Logger) *LabelService {
	return &LabelService{
		dir:    dir,
		cache:  expirable.NewLRU[string, string](labelCacheSize, nil, labelCacheTTL),
		logger: logger.With(slog.String("component", "label_service")),
	}
}

// KeyLabel возвращает подпись произвольного ключа профиля.
func (s *LabelService) KeyLabel(ctx context.Context, key string) string {
	k := scope.Parse(key)

	switch k.Kind {
	case scope.KindUser:
		return s.UserLabel(ctx, k.Value)
	case scope.KindGroup:
		return k.Value
	case scope.KindDefault:
		return "Общий дашборд"
	default:
		return k.Value
	}
}

// UserLabel возвращает подпись пользователя по его ID.
// Приоритет: полное имя → email → username → user:<id[:8]>.
// Каталог недоступен — fallback-подпись без ошибки.
func (s *LabelService) UserLabel(ctx context.Context, userID string) string {
	if label, ok := s.cache.Get(userID); ok {
		return label
	}

	v, err, _ := s.flight.Do(userID, func() (any, error) {
		return s.lookupLabel(ctx, userID), nil
	})
	if err != nil {
		return fallbackLabel(userID)
	}

	label := v.(string)
	s.cache.Add(userID, label)
	return label
}

// lookupLabel запрашивает данные пользователя из каталога.
func (s *LabelService) lookupLabel(ctx context.Context, userID string) string {
	if s.dir == nil {
		return fallbackLabel(userID)
	}

	u, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		s.logger.Debug("Подпись пользователя недоступна",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fallbackLabel(userID)
	}

	fullName := strings.TrimSpace(u.FirstName + " " + u.LastName)
	switch {
	case fullName != "":
		return fullName
	case u.Email != "":
		return u.Email
	case u.Username != "":
		return u.Username
	default:
		return fallbackLabel(userID)
	}
}

// fallbackLabel строит подпись из усечённого ID пользователя.
func fallbackLabel(userID string) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("user:%s", short)
}
