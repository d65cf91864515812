// Пакет service — бизнес-логика Linkboard.
// state.go — сервис состояний дашбордов: чтение и запись профилей,
// проверка прав на удаление, административные операции над ключами.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/golinkboard/internal/identity"
	"github.com/bigkaa/golinkboard/internal/scope"
	"github.com/bigkaa/golinkboard/internal/store"
)

// StateService — операции над состояниями профилей дашборда.
type StateService struct {
	store  store.Store
	gate   *scope.Gate
	logger *slog.Logger

	// authEnabled — настроена ли аутентификация. Без неё удаление
	// и административные мутации недоступны.
	authEnabled bool
}

// NewStateService создаёт сервис состояний.
func NewStateService(st store.Store, gate *scope.Gate, authEnabled bool, logger *slog.Logger) *StateService {
	return &StateService{
		store:       st,
		gate:        gate,
		authEnabled: authEnabled,
		logger:      logger.With(slog.String("component", "state_service")),
	}
}

// Get возвращает документ профиля. Пустой ключ — профиль default.
// Отсутствующий профиль — ErrNotFound.
func (s *StateService) Get(ctx context.Context, key string) (json.RawMessage, error) {
	k := scope.Parse(key)

	doc, err := s.store.Get(ctx, k.Raw)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение состояния [%s]: %w", k.Raw, err)
	}
	return doc, nil
}

// Put сохраняет документ профиля (upsert). Содержимое обязано быть
// валидным JSON. Пустой ключ — профиль default.
func (s *StateService) Put(ctx context.Context, key string, content json.RawMessage) error {
	if !json.Valid(content) {
		return ErrInvalidJSON
	}

	k := scope.Parse(key)
	if err := s.store.Put(ctx, k.Raw, content); err != nil {
		return fmt.Errorf("сохранение состояния [%s]: %w", k.Raw, err)
	}

	s.logger.Debug("Состояние сохранено", slog.String("key", k.Raw))
	return nil
}

// Delete удаляет профиль по ключу с проверкой прав.
// Без настроенной аутентификации удаление недоступно. Ключ обязателен:
// молчаливое удаление default по умолчанию запрещено.
func (s *StateService) Delete(ctx context.Context, key string) error {
	if !s.authEnabled {
		return ErrAuthDisabled
	}
	if key == "" {
		return fmt.Errorf("%w: ключ профиля обязателен", ErrValidation)
	}

	id := identity.FromContext(ctx)
	if id == nil {
		return ErrForbidden
	}

	k := scope.Parse(key)
	if !s.gate.CanDelete(id.Subject, id.Groups, k) {
		return ErrForbidden
	}

	if err := s.store.Delete(ctx, k.Raw); err != nil {
		return fmt.Errorf("удаление состояния [%s]: %w", k.Raw, err)
	}

	s.logger.Info("Состояние удалено",
		slog.String("key", k.Raw),
		slog.String("subject", id.Subject),
	)
	return nil
}

// ListKeys возвращает все сохранённые профили (только администратору).
// При отключённой аутентификации список пуст: обзорная страница
// работает, но не раскрывает содержимое хранилища.
func (s *StateService) ListKeys(ctx context.Context) ([]store.KeyInfo, error) {
	if !s.authEnabled {
		return []store.KeyInfo{}, nil
	}

	if !s.isAdmin(ctx) {
		return nil, ErrForbidden
	}

	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка состояний: %w", err)
	}
	return keys, nil
}

// AdminPut сохраняет документ произвольного профиля (только администратору).
func (s *StateService) AdminPut(ctx context.Context, key string, content json.RawMessage) error {
	if !s.authEnabled {
		return ErrAuthDisabled
	}
	if key == "" {
		return fmt.Errorf("%w: ключ профиля обязателен", ErrValidation)
	}
	if !s.isAdmin(ctx) {
		return ErrForbidden
	}

	return s.Put(ctx, key, content)
}

// AdminDelete удаляет произвольный профиль (только администратору).
func (s *StateService) AdminDelete(ctx context.Context, key string) error {
	if !s.authEnabled {
		return ErrAuthDisabled
	}
	if key == "" {
		return fmt.Errorf("%w: ключ профиля обязателен", ErrValidation)
	}
	if !s.isAdmin(ctx) {
		return ErrForbidden
	}

	k := scope.Parse(key)
	if err := s.store.Delete(ctx, k.Raw); err != nil {
		return fmt.Errorf("удаление состояния [%s]: %w", k.Raw, err)
	}

	s.logger.Info("Состояние удалено администратором", slog.String("key", k.Raw))
	return nil
}

// IsAdmin сообщает, является ли субъект запроса администратором.
func (s *StateService) IsAdmin(ctx context.Context) bool {
	return s.isAdmin(ctx)
}

func (s *StateService) isAdmin(ctx context.Context) bool {
	id := identity.FromContext(ctx)
	return id != nil && s.gate.IsAdmin(id.Groups)
}
