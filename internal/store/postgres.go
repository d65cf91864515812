package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/golinkboard/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore — хранилище состояний в PostgreSQL.
// Схема создаётся лениво при первом обращении: приложение стартует
// даже при недоступной базе, ошибка проявляется на первом запросе.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cfg    *config.Config
	logger *slog.Logger

	// initOnce гарантирует однократное применение миграций.
	// Результат (включая ошибку) кэшируется на всё время жизни процесса.
	initOnce sync.Once
	initErr  error
}

// NewPostgresStore создаёт пул подключений к PostgreSQL.
// Выполняет ping для проверки доступности. Миграции здесь НЕ применяются.
func NewPostgresStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	// Проверяем подключение
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)

	return &PostgresStore{pool: pool, cfg: cfg, logger: logger}, nil
}

// init применяет SQL-миграции из embedded FS. Вызывается лениво
// перед каждой операцией; конкурентные вызовы схлопываются в один.
func (s *PostgresStore) init() error {
	s.initOnce.Do(func() {
		source, err := iofs.New(migrationsFS, "migrations")
		if err != nil {
			s.initErr = fmt.Errorf("ошибка создания источника миграций: %w", err)
			return
		}

		m, err := migrate.NewWithSourceInstance("iofs", source, s.cfg.MigrateURL())
		if err != nil {
			s.initErr = fmt.Errorf("ошибка инициализации миграций: %w", err)
			return
		}
		defer m.Close()

		// Применяем все миграции
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			s.initErr = fmt.Errorf("ошибка применения миграций: %w", err)
			return
		}

		version, dirty, _ := m.Version()
		s.logger.Info("Миграции применены",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	})
	return s.initErr
}

// Get возвращает документ по ключу.
func (s *PostgresStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if err := s.init(); err != nil {
		return nil, err
	}

	query := `
		SELECT content
		FROM dashboard_state
		WHERE key = $1`

	var content json.RawMessage
	err := s.pool.QueryRow(ctx, query, key).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения dashboard_state[%s]: %w", key, err)
	}
	return content, nil
}

// Put создаёт или обновляет документ (INSERT ... ON CONFLICT DO UPDATE).
func (s *PostgresStore) Put(ctx context.Context, key string, content json.RawMessage) error {
	if err := s.init(); err != nil {
		return err
	}

	query := `
		INSERT INTO dashboard_state (key, content)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET content = EXCLUDED.content,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, key, content)
	if err != nil {
		return fmt.Errorf("ошибка сохранения dashboard_state[%s]: %w", key, err)
	}
	return nil
}

// Delete удаляет документ по ключу. Отсутствующий ключ — не ошибка.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := s.init(); err != nil {
		return err
	}

	query := `DELETE FROM dashboard_state WHERE key = $1`
	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("ошибка удаления dashboard_state[%s]: %w", key, err)
	}
	return nil
}

// List возвращает все ключи, отсортированные по убыванию updated_at.
func (s *PostgresStore) List(ctx context.Context) ([]KeyInfo, error) {
	if err := s.init(); err != nil {
		return nil, err
	}

	query := `
		SELECT key, updated_at
		FROM dashboard_state
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка dashboard_state: %w", err)
	}
	defer rows.Close()

	keys := []KeyInfo{}
	for rows.Next() {
		var k KeyInfo
		if err := rows.Scan(&k.Key, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования dashboard_state: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close закрывает пул подключений.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ReadinessChecker — проверка готовности PostgreSQL для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(s *PostgresStore) *ReadinessChecker {
	return &ReadinessChecker{pool: s.pool}
}

// CheckReady проверяет подключение к PostgreSQL через ping.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
