package store

import (
	"context"
	"encoding/json"
)

// NoopStore — заглушка при отключённой персистентности (local-only
// режим): клиент хранит состояние сам. Get ведёт себя как пустое
// хранилище, Put и Delete молча считаются успешными — фронтенд
// не различает отключённый и пустой backend.
type NoopStore struct{}

// NewNoopStore создаёт заглушку хранилища.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) Get(_ context.Context, _ string) (json.RawMessage, error) {
	return nil, ErrNotFound
}

func (s *NoopStore) Put(_ context.Context, _ string, _ json.RawMessage) error {
	return nil
}

func (s *NoopStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *NoopStore) List(_ context.Context) ([]KeyInfo, error) {
	return []KeyInfo{}, nil
}

func (s *NoopStore) Close() {}
