// Пакет config — загрузка и валидация конфигурации Linkboard
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Драйверы персистентности.
const (
	DriverPostgres = "postgres"
	DriverFile     = "file"
	// DriverNone — удалённая персистентность отключена (local-only режим).
	DriverNone = ""
)

// issuerRe разбирает issuer URL Keycloak на базовый URL и realm.
// Пример: https://keycloak.kryukov.lan/realms/linkboard.
var issuerRe = regexp.MustCompile(`^(https?://[^/]+)/realms/([^/]+)$`)

// Config содержит все параметры конфигурации Linkboard.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Персистентность ---

	// Драйвер: postgres, file или пусто (local-only)
	PersistDriver string
	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Директория file-драйвера
	FileDir string

	// --- Keycloak ---

	// Issuer URL realm'а (например, https://keycloak.lan/realms/linkboard).
	// Пустое значение — аутентификация отключена.
	KeycloakIssuer string
	// Базовый URL Keycloak (вычисляется из issuer)
	KeycloakBaseURL string
	// Имя realm (вычисляется из issuer)
	KeycloakRealm string
	// Административная учётная запись для Admin REST API
	KeycloakAdminUser string
	// Пароль административной учётной записи
	KeycloakAdminPassword string

	// --- Авторизация ---

	// Группа Keycloak, члены которой — администраторы дашборда
	AdminGroup string
	// Требовать аутентификацию для всех запросов
	AuthRequired bool
	// Полный обход аутентификации (ТОЛЬКО для тестовых окружений)
	TestAuth bool

	// --- JWT ---

	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// LB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("LB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("LB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("LB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// LB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LB_LOG_LEVEL: %w", err)
	}

	// LB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("LB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Персистентность ---

	// LB_PERSIST_DRIVER — postgres, file или пусто (по умолчанию пусто)
	cfg.PersistDriver = strings.ToLower(getEnvDefault("LB_PERSIST_DRIVER", ""))
	switch cfg.PersistDriver {
	case DriverNone:
		// local-only режим: удалённое хранилище отключено

	case DriverPostgres:
		// LB_DB_HOST — обязательный для postgres
		cfg.DBHost, err = getEnvRequired("LB_DB_HOST")
		if err != nil {
			return nil, err
		}

		// LB_DB_PORT — порт PostgreSQL (по умолчанию 5432)
		cfg.DBPort, err = getEnvInt("LB_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("LB_DB_PORT: %w", err)
		}

		// LB_DB_NAME — обязательный
		cfg.DBName, err = getEnvRequired("LB_DB_NAME")
		if err != nil {
			return nil, err
		}

		// LB_DB_USER — обязательный
		cfg.DBUser, err = getEnvRequired("LB_DB_USER")
		if err != nil {
			return nil, err
		}

		// LB_DB_PASSWORD — обязательный
		cfg.DBPassword, err = getEnvRequired("LB_DB_PASSWORD")
		if err != nil {
			return nil, err
		}

		// LB_DB_SSL_MODE — режим SSL (по умолчанию disable)
		cfg.DBSSLMode = getEnvDefault("LB_DB_SSL_MODE", "disable")
		validSSLModes := map[string]bool{
			"disable": true, "require": true, "verify-ca": true, "verify-full": true,
		}
		if !validSSLModes[cfg.DBSSLMode] {
			return nil, fmt.Errorf("LB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
		}

	case DriverFile:
		// LB_FILE_DIR — директория хранения (по умолчанию ./data)
		cfg.FileDir = getEnvDefault("LB_FILE_DIR", "./data")

	default:
		return nil, fmt.Errorf("LB_PERSIST_DRIVER: неизвестный драйвер %q, допустимые: postgres, file или пусто", cfg.PersistDriver)
	}

	// --- Keycloak ---

	// LB_KEYCLOAK_ISSUER — issuer URL realm'а (опционально; пусто = auth отключён)
	cfg.KeycloakIssuer = strings.TrimRight(getEnvDefault("LB_KEYCLOAK_ISSUER", ""), "/")
	if cfg.KeycloakIssuer != "" {
		m := issuerRe.FindStringSubmatch(cfg.KeycloakIssuer)
		if m == nil {
			return nil, fmt.Errorf("LB_KEYCLOAK_ISSUER: некорректный issuer %q, ожидается формат http(s)://host/realms/<realm>", cfg.KeycloakIssuer)
		}
		cfg.KeycloakBaseURL = m[1]
		cfg.KeycloakRealm = m[2]
	}

	// LB_KEYCLOAK_ADMIN_USER — административная учётка (по умолчанию admin)
	cfg.KeycloakAdminUser = getEnvDefault("LB_KEYCLOAK_ADMIN_USER", "admin")

	// LB_KEYCLOAK_ADMIN_PASSWORD — пароль административной учётки (по умолчанию admin)
	cfg.KeycloakAdminPassword = getEnvDefault("LB_KEYCLOAK_ADMIN_PASSWORD", "admin")

	// --- Авторизация ---

	// LB_ADMIN_GROUP — группа администраторов (по умолчанию devops)
	cfg.AdminGroup = getEnvDefault("LB_ADMIN_GROUP", "devops")

	// LB_AUTH_REQUIRED — требовать аутентификацию глобально (по умолчанию false)
	cfg.AuthRequired = getEnvBool("LB_AUTH_REQUIRED")

	// LB_TEST_AUTH — обход аутентификации для тестов (по умолчанию false)
	cfg.TestAuth = getEnvBool("LB_TEST_AUTH")

	// --- JWT ---

	// LB_JWT_LEEWAY — допуск времени при валидации JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("LB_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LB_JWT_LEEWAY: %w", err)
	}

	// LB_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("LB_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LB_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// LB_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("LB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// AuthEnabled сообщает, настроена ли аутентификация через Keycloak.
func (c *Config) AuthEnabled() bool {
	return c.KeycloakIssuer != ""
}

// IdentityAvailable сообщает, будет ли у запросов личность: настоящая
// (Keycloak) или синтетическая (LB_TEST_AUTH). От этого зависят операции
// сервисного слоя, требующие субъекта: удаление и административные мутации.
func (c *Config) IdentityAvailable() bool {
	return c.AuthEnabled() || c.TestAuth
}

// JWKSURL возвращает URL JWKS endpoint'а realm'а.
func (c *Config) JWKSURL() string {
	return c.KeycloakIssuer + "/protocol/openid-connect/certs"
}

// UserinfoURL возвращает URL userinfo endpoint'а realm'а.
func (c *Config) UserinfoURL() string {
	return c.KeycloakIssuer + "/protocol/openid-connect/userinfo"
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL подключения для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvBool возвращает true, если переменная равна "1" или "true".
func getEnvBool(key string) bool {
	val := strings.ToLower(os.Getenv(key))
	return val == "1" || val == "true"
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
