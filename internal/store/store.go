// Пакет store — хранилище состояний дашбордов.
// Поддерживает драйверы postgres и file, выбор через LB_PERSIST_DRIVER.
// Состояние — непрозрачный JSON-документ, привязанный к ключу профиля.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bigkaa/golinkboard/internal/config"
)

// ErrNotFound — состояние с указанным ключом не найдено.
var ErrNotFound = errors.New("состояние не найдено")

// KeyInfo — запись списка сохранённых профилей.
type KeyInfo struct {
	// Ключ профиля (default, user:<id>, group:<name> или произвольный)
	Key string `json:"key"`
	// Время последнего обновления
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store — интерфейс хранилища состояний дашбордов.
// Реализации обязаны выполнять ленивую инициализацию: первое обращение
// готовит схему хранения, ошибка инициализации возвращается всем
// последующим вызовам без повторных попыток.
type Store interface {
	// Get возвращает документ по ключу. Если не найден — ErrNotFound.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	// Put создаёт или обновляет документ (upsert).
	Put(ctx context.Context, key string, content json.RawMessage) error
	// Delete удаляет документ по ключу. Отсутствующий ключ — не ошибка.
	Delete(ctx context.Context, key string) error
	// List возвращает все ключи, отсортированные по убыванию updated_at.
	List(ctx context.Context) ([]KeyInfo, error)
	// Close освобождает ресурсы хранилища.
	Close()
}

// New создаёт хранилище по драйверу из конфигурации.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.PersistDriver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg, logger)
	case config.DriverFile:
		return NewFileStore(cfg.FileDir, logger)
	default:
		return NewNoopStore(), nil
	}
}
