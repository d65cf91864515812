// resolver.go — выбор активного профиля и синхронизация его состояния.
// Воспроизводит поведение клиентской сессии: приоритет источников ключа,
// MRU-список недавних профилей и отложенная запись в удалённое хранилище.
package scope

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Ключи локального кэша.
const (
	cacheKeyScope   = "persist_scope"
	cacheKeyState   = "persist_state"
	cacheKeyRecents = "persist_profiles_recent"
)

// maxRecents — максимум записей в MRU-списке недавних профилей.
const maxRecents = 8

// saveDebounce — задержка отложенной записи состояния в удалённое
// хранилище. Частые правки схлопываются в одну запись.
const saveDebounce = 600 * time.Millisecond

// LocalCache — локальный кэш сессии (аналог localStorage клиента).
type LocalCache interface {
	// Get возвращает значение по ключу.
	Get(key string) (string, bool)
	// Set сохраняет значение по ключу.
	Set(key, value string)
}

// Remote — удалённое хранилище состояний профилей.
type Remote interface {
	// Fetch загружает документ профиля.
	Fetch(ctx context.Context, key string) (json.RawMessage, error)
	// Save сохраняет документ профиля.
	Save(ctx context.Context, key string, doc json.RawMessage) error
}

// Resolver — активный профиль сессии и его документ.
// Потокобезопасен; загрузка документа при смене профиля асинхронна,
// устаревшие ответы отбрасываются по номеру поколения.
type Resolver struct {
	cache  LocalCache
	remote Remote
	logger *slog.Logger

	// OnKeyChange — необязательный хук смены профиля: вызывается
	// при каждом переключении ключа. Клиент отражает выбор
	// в URL страницы, чтобы профилем можно было поделиться ссылкой.
	OnKeyChange func(key string)

	mu  sync.Mutex
	key string
	doc json.RawMessage

	// gen — поколение активного профиля. Растёт при каждой смене
	// ключа; ответ загрузки с устаревшим поколением игнорируется.
	gen uint64

	// Отложенная запись: таймер перезапускается при каждой правке.
	saveTimer *time.Timer
	delay     time.Duration
}

// NewResolver создаёт resolver поверх локального кэша и удалённого
// хранилища.
func NewResolver(cache LocalCache, remote Remote, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:  cache,
		remote: remote,
		logger: logger.With(slog.String("component", "scope_resolver")),
		key:    DefaultKey,
		delay:  saveDebounce,
	}
}

// Resolve определяет начальный ключ профиля по приоритету источников:
// явный параметр → сохранённый выбор → личный профиль → default.
func (r *Resolver) Resolve(explicit, subject string) string {
	if explicit != "" {
		return explicit
	}
	if saved, ok := r.cache.Get(cacheKeyScope); ok && saved != "" {
		return saved
	}
	if subject != "" {
		return UserKey(subject)
	}
	return DefaultKey
}

// Current возвращает активный ключ и документ профиля.
func (r *Resolver) Current() (string, json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key, r.doc
}

// SetKey переключает активный профиль. Выбор запоминается в локальном
// кэше и MRU-списке, документ загружается асинхронно. При ошибке
// загрузки текущий документ сохраняется, профиль не откатывается.
func (r *Resolver) SetKey(ctx context.Context, key string) {
	if key == "" {
		key = DefaultKey
	}

	r.mu.Lock()
	r.key = key
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	r.cache.Set(cacheKeyScope, key)
	r.rememberRecent(key)

	if r.OnKeyChange != nil {
		r.OnKeyChange(key)
	}

	go func() {
		doc, err := r.remote.Fetch(ctx, key)
		if err != nil {
			r.logger.Warn("Не удалось загрузить профиль",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		// Профиль сменился, пока шла загрузка
		if r.gen != gen {
			return
		}
		r.doc = doc
	}()
}

// SetDocument обновляет документ активного профиля: синхронная запись
// в локальный кэш при каждой правке, отложенная — в удалённое хранилище.
// Локальная копия переживает закрытие сессии внутри окна debounce.
func (r *Resolver) SetDocument(doc json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc = doc
	key := r.key

	r.cache.Set(cacheKeyState, string(doc))

	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	r.saveTimer = time.AfterFunc(r.delay, func() {
		r.flush(key, doc)
	})
}

// flush выполняет отложенную запись документа.
func (r *Resolver) flush(key string, doc json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.remote.Save(ctx, key, doc); err != nil {
		r.logger.Warn("Не удалось сохранить профиль",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Recents возвращает MRU-список недавних профилей (не более 8).
func (r *Resolver) Recents() []string {
	raw, ok := r.cache.Get(cacheKeyRecents)
	if !ok || raw == "" {
		return []string{}
	}

	var recents []string
	if err := json.Unmarshal([]byte(raw), &recents); err != nil {
		return []string{}
	}
	return recents
}

// rememberRecent ставит ключ в начало MRU-списка недавних профилей.
func (r *Resolver) rememberRecent(key string) {
	recents := r.Recents()

	updated := make([]string, 0, len(recents)+1)
	updated = append(updated, key)
	for _, k := range recents {
		if k == key {
			continue
		}
		updated = append(updated, k)
	}
	if len(updated) > maxRecents {
		updated = updated[:maxRecents]
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return
	}
	r.cache.Set(cacheKeyRecents, string(data))
}
