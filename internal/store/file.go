package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileStore — хранилище состояний в файлах на диске.
// Один документ — один файл <dir>/<escaped-key>.json. Ключ кодируется
// через url.PathEscape, чтобы "user:42" и "group:dev/ops" были
// безопасными именами файлов. Время обновления — mtime файла.
type FileStore struct {
	dir    string
	logger *slog.Logger

	// mu сериализует запись и удаление. Чтение не блокируется:
	// rename атомарен, читатель видит либо старую, либо новую версию.
	mu sync.Mutex

	// Ленивое создание директории при первом обращении.
	initOnce sync.Once
	initErr  error
}

// NewFileStore создаёт файловое хранилище. Директория создаётся
// лениво при первом обращении, а не при старте.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("директория файлового хранилища не задана")
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// init создаёт директорию хранения. Ошибка кэшируется.
func (s *FileStore) init() error {
	s.initOnce.Do(func() {
		if err := os.MkdirAll(s.dir, 0o750); err != nil {
			s.initErr = fmt.Errorf("не удалось создать директорию данных %s: %w", s.dir, err)
			return
		}
		s.logger.Info("Файловое хранилище инициализировано", slog.String("dir", s.dir))
	})
	return s.initErr
}

// path возвращает путь файла для ключа.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Get возвращает документ по ключу.
func (s *FileStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	if err := s.init(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения состояния [%s]: %w", key, err)
	}
	return data, nil
}

// Put создаёт или обновляет документ.
// Паттерн: temp файл → запись → fsync → atomic rename.
func (s *FileStore) Put(_ context.Context, key string, content json.RawMessage) error {
	if err := s.init(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fullPath := s.path(key)
	tmpPath := fullPath + "." + uuid.New().String()[:8] + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи состояния [%s]: %w", key, err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Delete удаляет документ по ключу. Отсутствующий файл — не ошибка.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := s.init(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления состояния [%s]: %w", key, err)
	}
	return nil
}

// List возвращает все ключи, отсортированные по убыванию mtime.
func (s *FileStore) List(_ context.Context) ([]KeyInfo, error) {
	if err := s.init(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dir, err)
	}

	keys := []KeyInfo{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Посторонний файл, пропускаем
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		keys = append(keys, KeyInfo{Key: key, UpdatedAt: info.ModTime()})
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].UpdatedAt.After(keys[j].UpdatedAt)
	})
	return keys, nil
}

// Close — для файлового хранилища освобождать нечего.
func (s *FileStore) Close() {}
