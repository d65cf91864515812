// Пакет identity — аутентификация запросов и личность пользователя.
// identity.go — модель личности и helpers контекста.
package identity

import "context"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyIdentity — личность пользователя в контексте запроса.
const ContextKeyIdentity contextKey = "identity"

// Identity — аутентифицированный пользователь.
type Identity struct {
	// Subject — sub из JWT (Keycloak user ID)
	Subject string
	// Username — preferred_username из JWT
	Username string
	// FullName — name из JWT
	FullName string
	// Email — email из JWT
	Email string
	// Groups — группы пользователя (имена или пути вида /devops)
	Groups []string
}

// WithIdentity помещает личность в контекст запроса.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// FromContext извлекает личность из контекста запроса.
// Возвращает nil для анонимного запроса.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*Identity)
	return id
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку для анонимного запроса.
func SubjectFromContext(ctx context.Context) string {
	id := FromContext(ctx)
	if id == nil {
		return ""
	}
	return id.Subject
}

// GroupsFromContext извлекает группы из контекста запроса.
func GroupsFromContext(ctx context.Context) []string {
	id := FromContext(ctx)
	if id == nil {
		return nil
	}
	return id.Groups
}
