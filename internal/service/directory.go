// directory.go — сервис управления каталогом пользователей и групп.
// Оркестрация операций Keycloak Admin API: создание пользователей
// с паролем и группами, удаление групп с миграцией участников,
// сверка членства пользователя с желаемым набором групп.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/golinkboard/internal/keycloak"
)

// migrationPageSize — размер страницы при переносе участников группы.
const migrationPageSize = 100

// Directory — операции Keycloak Admin API, используемые сервисом.
// Реализуется keycloak.Client.
type Directory interface {
	ListGroups(ctx context.Context) ([]keycloak.KeycloakGroup, error)
	CreateGroup(ctx context.Context, name string) (string, error)
	RenameGroup(ctx context.Context, id, name string) error
	DeleteGroup(ctx context.Context, id string) error
	GroupMembers(ctx context.Context, groupID string, first, max int) ([]keycloak.KeycloakUser, error)

	ListUsers(ctx context.Context, query string, first, max int) ([]keycloak.KeycloakUser, error)
	CountUsers(ctx context.Context, query string) (int, error)
	GetUser(ctx context.Context, id string) (*keycloak.KeycloakUser, error)
	CreateUser(ctx context.Context, username, email string) (string, error)
	DeleteUser(ctx context.Context, id string) error
	SetUserPassword(ctx context.Context, id, password string) error
	UserGroups(ctx context.Context, userID string) ([]keycloak.KeycloakGroup, error)
	AddUserToGroup(ctx context.Context, userID, groupID string) error
	RemoveUserFromGroup(ctx context.Context, userID, groupID string) error
}

// Group — группа каталога.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User — пользователь каталога с группами.
type User struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Enabled   bool     `json:"enabled"`
	Groups    []string `json:"groups"`
}

// UserPage — страница списка пользователей.
type UserPage struct {
	Users    []User `json:"users"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// DirectoryService — сервис управления каталогом.
type DirectoryService struct {
	dir    Directory
	logger *slog.Logger
}

// NewDirectoryService создаёт сервис каталога.
func NewDirectoryService(dir Directory, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		dir:    dir,
		logger: logger.With(slog.String("component", "directory_service")),
	}
}

// --- Группы ---

// ListGroups возвращает группы realm.
func (s *DirectoryService) ListGroups(ctx context.Context) ([]Group, error) {
	kcGroups, err := s.dir.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	groups := make([]Group, 0, len(kcGroups))
	for _, g := range kcGroups {
		groups = append(groups, Group{ID: g.ID, Name: g.Name})
	}
	return groups, nil
}

// CreateGroup создаёт группу и возвращает её.
func (s *DirectoryService) CreateGroup(ctx context.Context, name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя группы обязательно", ErrValidation)
	}

	id, err := s.dir.CreateGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	s.logger.Info("Группа создана", slog.String("name", name), slog.String("id", id))
	return &Group{ID: id, Name: name}, nil
}

// RenameGroup переименовывает группу.
func (s *DirectoryService) RenameGroup(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: имя группы обязательно", ErrValidation)
	}

	if err := s.dir.RenameGroup(ctx, id, name); err != nil {
		return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	s.logger.Info("Группа переименована", slog.String("id", id), slog.String("name", name))
	return nil
}

// DeleteGroup удаляет группу. Если задан target (ID или имя целевой
// группы), участники переносятся в целевую: сперва добавление в
// целевую, затем удаление из исходной — ни один участник не остаётся
// без группы в середине операции. Целевая группа разрешается до
// любых изменений.
func (s *DirectoryService) DeleteGroup(ctx context.Context, id, target string) error {
	if target != "" {
		targetID, err := s.resolveTargetGroup(ctx, target)
		if err != nil {
			return err
		}
		if targetID == id {
			return fmt.Errorf("%w: целевая группа совпадает с удаляемой", ErrValidation)
		}
		if err := s.migrateMembers(ctx, id, targetID); err != nil {
			return err
		}
	}

	if err := s.dir.DeleteGroup(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	s.logger.Info("Группа удалена",
		slog.String("id", id),
		slog.String("target", target),
	)
	return nil
}

// resolveTargetGroup разрешает целевую группу по ID или имени.
// Неразрешимая цель — ошибка валидации до каких-либо мутаций.
func (s *DirectoryService) resolveTargetGroup(ctx context.Context, target string) (string, error) {
	groups, err := s.dir.ListGroups(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}
	for _, g := range groups {
		if g.ID == target {
			return g.ID, nil
		}
	}
	for _, g := range groups {
		if g.Name == target {
			return g.ID, nil
		}
	}
	return "", fmt.Errorf("%w: целевая группа %s не найдена", ErrValidation, target)
}

// migrateMembers переносит всех участников из группы from в группу to.
// Постраничный обход (по migrationPageSize), строго последовательно:
// добавление в целевую группу раньше удаления из исходной.
func (s *DirectoryService) migrateMembers(ctx context.Context, from, to string) error {
	moved := 0
	for {
		// Всегда первая страница: удаление из исходной группы
		// сдвигает оставшихся участников в начало
		members, err := s.dir.GroupMembers(ctx, from, 0, migrationPageSize)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
		}
		if len(members) == 0 {
			break
		}

		for _, m := range members {
			if err := s.dir.AddUserToGroup(ctx, m.ID, to); err != nil {
				return fmt.Errorf("перенос пользователя %s: %w", m.ID, err)
			}
			if err := s.dir.RemoveUserFromGroup(ctx, m.ID, from); err != nil {
				return fmt.Errorf("удаление пользователя %s из группы: %w", m.ID, err)
			}
			moved++
		}
	}

	s.logger.Info("Участники перенесены",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("moved", moved),
	)
	return nil
}

// --- Пользователи ---

// ListUsers возвращает страницу пользователей с их группами.
// page — с единицы, pageSize ограничен [1, 100].
func (s *DirectoryService) ListUsers(ctx context.Context, search string, page, pageSize int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	kcUsers, err := s.dir.ListUsers(ctx, search, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	total, err := s.dir.CountUsers(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	users := make([]User, 0, len(kcUsers))
	for _, u := range kcUsers {
		user := User{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Enabled:   u.Enabled,
			Groups:    []string{},
		}

		// Группы per-user; ошибка не роняет весь список
		kcGroups, err := s.dir.UserGroups(ctx, u.ID)
		if err != nil {
			s.logger.Warn("Не удалось получить группы пользователя",
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
		} else {
			for _, g := range kcGroups {
				user.Groups = append(user.Groups, g.Name)
			}
		}

		users = append(users, user)
	}

	return &UserPage{Users: users, Total: total, Page: page, PageSize: pageSize}, nil
}

// CreateUser создаёт пользователя с паролем и группами.
// Последовательность: создание → установка пароля → добавление в группы.
// Неизвестные имена групп молча пропускаются.
func (s *DirectoryService) CreateUser(ctx context.Context, username, email, password string, groupNames []string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: имя пользователя обязательно", ErrValidation)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: пароль обязателен", ErrValidation)
	}

	id, err := s.dir.CreateUser(ctx, username, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	if err := s.dir.SetUserPassword(ctx, id, password); err != nil {
		return nil, fmt.Errorf("установка пароля пользователя %s: %w", id, err)
	}

	assigned := []string{}
	if len(groupNames) > 0 {
		ids, names, err := s.resolveGroups(ctx, groupNames)
		if err != nil {
			return nil, err
		}
		for i, gid := range ids {
			if err := s.dir.AddUserToGroup(ctx, id, gid); err != nil {
				return nil, fmt.Errorf("добавление пользователя %s в группу %s: %w", id, gid, err)
			}
			assigned = append(assigned, names[i])
		}
	}

	s.logger.Info("Пользователь создан",
		slog.String("username", username),
		slog.String("id", id),
		slog.Int("groups", len(assigned)),
	)

	return &User{
		ID:       id,
		Username: username,
		Email:    email,
		Enabled:  true,
		Groups:   assigned,
	}, nil
}

// DeleteUser удаляет пользователя.
func (s *DirectoryService) DeleteUser(ctx context.Context, id string) error {
	if err := s.dir.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}
	s.logger.Info("Пользователь удалён", slog.String("id", id))
	return nil
}

// SetPassword устанавливает постоянный пароль пользователя.
func (s *DirectoryService) SetPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return fmt.Errorf("%w: пароль обязателен", ErrValidation)
	}
	if err := s.dir.SetUserPassword(ctx, id, password); err != nil {
		return fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}
	return nil
}

// UserGroups возвращает группы пользователя.
func (s *DirectoryService) UserGroups(ctx context.Context, userID string) ([]Group, error) {
	kcGroups, err := s.dir.UserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	groups := make([]Group, 0, len(kcGroups))
	for _, g := range kcGroups {
		groups = append(groups, Group{ID: g.ID, Name: g.Name})
	}
	return groups, nil
}

// ReconcileUserGroups приводит членство пользователя к желаемому набору
// имён групп. Неизвестные имена молча пропускаются. Сперва добавление
// в недостающие группы, затем удаление из лишних.
func (s *DirectoryService) ReconcileUserGroups(ctx context.Context, userID string, wanted []string) ([]string, error) {
	wantedIDs, wantedNames, err := s.resolveGroups(ctx, wanted)
	if err != nil {
		return nil, err
	}

	current, err := s.dir.UserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	currentByID := make(map[string]bool, len(current))
	for _, g := range current {
		currentByID[g.ID] = true
	}
	wantedByID := make(map[string]bool, len(wantedIDs))
	for _, id := range wantedIDs {
		wantedByID[id] = true
	}

	// Добавляем недостающие
	for _, id := range wantedIDs {
		if currentByID[id] {
			continue
		}
		if err := s.dir.AddUserToGroup(ctx, userID, id); err != nil {
			return nil, fmt.Errorf("добавление в группу %s: %w", id, err)
		}
	}

	// Удаляем лишние
	for _, g := range current {
		if wantedByID[g.ID] {
			continue
		}
		if err := s.dir.RemoveUserFromGroup(ctx, userID, g.ID); err != nil {
			return nil, fmt.Errorf("удаление из группы %s: %w", g.ID, err)
		}
	}

	s.logger.Info("Членство пользователя сверено",
		slog.String("user_id", userID),
		slog.Int("groups", len(wantedNames)),
	)
	return wantedNames, nil
}

// resolveGroups сопоставляет имена групп с их ID.
// Неизвестные имена пропускаются без ошибки.
func (s *DirectoryService) resolveGroups(ctx context.Context, names []string) (ids, resolved []string, err error) {
	groups, err := s.dir.ListGroups(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrIDPUnavailable, err)
	}

	byName := make(map[string]string, len(groups))
	for _, g := range groups {
		byName[g.Name] = g.ID
	}

	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			s.logger.Warn("Неизвестная группа пропущена", slog.String("name", name))
			continue
		}
		ids = append(ids, id)
		resolved = append(resolved, name)
	}
	return ids, resolved, nil
}
