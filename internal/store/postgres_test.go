package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/golinkboard/internal/config"
)

// setupPostgresStore запускает PostgreSQL контейнер и создаёт хранилище.
// Миграции применяются лениво при первом обращении.
func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("linkboard_test"),
		postgres.WithUsername("linkboard"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("LB_PERSIST_DRIVER", "postgres")
	os.Setenv("LB_DB_HOST", host)
	os.Setenv("LB_DB_PORT", port.Port())
	os.Setenv("LB_DB_NAME", "linkboard_test")
	os.Setenv("LB_DB_USER", "linkboard")
	os.Setenv("LB_DB_PASSWORD", "test-password")
	os.Setenv("LB_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := NewPostgresStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}

func TestPostgresStoreCRUD(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	// Get до записи — ErrNotFound (миграции применяются лениво)
	if _, err := s.Get(ctx, "user:42"); err != ErrNotFound {
		t.Errorf("Get() до записи: ожидали ErrNotFound, получили: %v", err)
	}

	// Put + Get
	doc := json.RawMessage(`{"groups": [{"title": "Dev", "links": []}]}`)
	if err := s.Put(ctx, "user:42", doc); err != nil {
		t.Fatalf("Put() ошибка: %v", err)
	}
	got, err := s.Get(ctx, "user:42")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	var gotDoc, wantDoc map[string]any
	if err := json.Unmarshal(got, &gotDoc); err != nil {
		t.Fatalf("Get() вернул некорректный JSON: %v", err)
	}
	json.Unmarshal(doc, &wantDoc)
	if len(gotDoc) != len(wantDoc) {
		t.Errorf("Get() = %s, хотели %s", got, doc)
	}

	// Upsert: повторный Put обновляет content и updated_at
	list1, _ := s.List(ctx)
	if err := s.Put(ctx, "user:42", json.RawMessage(`{"groups": []}`)); err != nil {
		t.Fatalf("Put() повторный ошибка: %v", err)
	}
	list2, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list2) != 1 {
		t.Fatalf("List() вернул %d записей, хотели 1", len(list2))
	}
	if !list2[0].UpdatedAt.After(list1[0].UpdatedAt) {
		t.Errorf("updated_at не обновился при upsert: %v -> %v", list1[0].UpdatedAt, list2[0].UpdatedAt)
	}

	// Delete
	if err := s.Delete(ctx, "user:42"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := s.Get(ctx, "user:42"); err != ErrNotFound {
		t.Errorf("Get() после Delete: ожидали ErrNotFound, получили: %v", err)
	}

	// Повторный Delete — не ошибка
	if err := s.Delete(ctx, "user:42"); err != nil {
		t.Errorf("Delete() отсутствующего ключа: %v", err)
	}
}

func TestPostgresStoreListOrder(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	for _, k := range []string{"default", "user:1", "group:devops"} {
		if err := s.Put(ctx, k, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("Put(%q) ошибка: %v", k, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() вернул %d записей, хотели 3", len(list))
	}
	if list[0].Key != "group:devops" {
		t.Errorf("List()[0].Key = %q, хотели %q", list[0].Key, "group:devops")
	}
	for i := 1; i < len(list); i++ {
		if list[i].UpdatedAt.After(list[i-1].UpdatedAt) {
			t.Errorf("List() не отсортирован по убыванию updated_at")
		}
	}
}
