// Точка входа Linkboard — backend персонализируемого дашборда ссылок.
// Загружает конфигурацию, инициализирует хранилище состояний,
// Keycloak-клиент и сервисный слой, запускает HTTP-сервер с identity
// middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bigkaa/golinkboard/internal/api/handlers"
	"github.com/bigkaa/golinkboard/internal/config"
	"github.com/bigkaa/golinkboard/internal/identity"
	"github.com/bigkaa/golinkboard/internal/keycloak"
	"github.com/bigkaa/golinkboard/internal/scope"
	"github.com/bigkaa/golinkboard/internal/server"
	"github.com/bigkaa/golinkboard/internal/service"
	"github.com/bigkaa/golinkboard/internal/store"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Linkboard запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("persist_driver", cfg.PersistDriver),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	// 3. Хранилище состояний (postgres / file / none).
	// Миграции и создание каталога выполняются лениво при первом
	// обращении: недоступный backend не мешает старту.
	ctx := context.Background()
	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	// 4. Keycloak Admin API клиент (только при настроенной аутентификации)
	var kcClient *keycloak.Client
	if cfg.AuthEnabled() {
		kcClient = keycloak.New(
			cfg.KeycloakBaseURL,
			cfg.KeycloakRealm,
			cfg.KeycloakAdminUser,
			cfg.KeycloakAdminPassword,
			nil, // стандартный HTTP-клиент
			logger,
		)
		logger.Info("Keycloak клиент создан",
			slog.String("url", cfg.KeycloakBaseURL),
			slog.String("realm", cfg.KeycloakRealm),
		)
	} else {
		logger.Warn("Аутентификация не настроена: удаление и операции каталога недоступны")
	}

	// 5. Сервисный слой.
	// Тестовый обход (LB_TEST_AUTH) даёт синтетическую личность, поэтому
	// для сервисного слоя он равнозначен настроенной аутентификации:
	// иначе удаление и административные мутации нечем было бы проверять.
	gate := scope.NewGate(cfg.AdminGroup)
	stateSvc := service.NewStateService(st, gate, cfg.IdentityAvailable(), logger)

	var directorySvc *service.DirectoryService
	var labelDir service.Directory
	if kcClient != nil {
		directorySvc = service.NewDirectoryService(kcClient, logger)
		labelDir = kcClient
	}
	labelSvc := service.NewLabelService(labelDir, logger)

	// 6. Identity middleware (JWKS + fallback на Admin API за группами)
	var auth *identity.Authenticator
	switch {
	case cfg.AuthEnabled():
		auth, err = identity.New(identity.Options{
			JWKSURL:             cfg.JWKSURL(),
			Issuer:              cfg.KeycloakIssuer,
			UserinfoURL:         cfg.UserinfoURL(),
			JWTLeeway:           cfg.JWTLeeway,
			JWKSRefreshInterval: cfg.JWKSRefreshInterval,
			Required:            cfg.AuthRequired,
			TestBypass:          cfg.TestAuth,
			AdminGroup:          cfg.AdminGroup,
			Groups:              server.NewGroupPathProvider(kcClient),
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации identity middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Identity middleware инициализирован",
			slog.String("jwks_url", cfg.JWKSURL()),
			slog.String("issuer", cfg.KeycloakIssuer),
			slog.Bool("test_auth", cfg.TestAuth),
		)

	case cfg.TestAuth:
		// Тестовый обход без Keycloak: JWKS не нужен
		auth = identity.NewWithKeyfunc(nil, identity.Options{
			TestBypass: true,
			AdminGroup: cfg.AdminGroup,
		}, logger)
		logger.Warn("LB_TEST_AUTH включён: все запросы от синтетического администратора")
	}

	// 7. Readiness checkers (PostgreSQL + Keycloak, если настроены)
	var storeChecker, kcChecker handlers.ReadinessChecker
	if pg, ok := st.(*store.PostgresStore); ok {
		storeChecker = store.NewReadinessChecker(pg)
	}
	if kcClient != nil {
		kcChecker = kcClient
	}
	healthHandler := handlers.NewHealthHandler(storeChecker, kcChecker)

	// 8. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		stateSvc,
		directorySvc,
		labelSvc,
		logger,
	)

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, auth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Linkboard остановлен")
}
