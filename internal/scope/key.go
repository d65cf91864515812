// Пакет scope — ключи профилей дашборда и правила доступа к ним.
// Ключ определяет, чьё состояние хранится: общий default, личный
// профиль пользователя, профиль группы или произвольный именованный.
package scope

import "strings"

// DefaultKey — общий профиль, доступный всем на чтение.
const DefaultKey = "default"

// Виды ключей профиля.
const (
	KindDefault = "default"
	KindUser    = "user"
	KindGroup   = "group"
	KindCustom  = "custom"
)

// Префиксы типизированных ключей.
const (
	userPrefix  = "user:"
	groupPrefix = "group:"
)

// Key — разобранный ключ профиля.
type Key struct {
	// Raw — исходная строка ключа
	Raw string
	// Kind — вид ключа (default, user, group, custom)
	Kind string
	// Value — полезная часть: ID пользователя, имя группы
	// или сам ключ для custom
	Value string
}

// Parse разбирает строку ключа профиля.
// "default" и пустая строка — общий профиль. Двоеточие внутри
// custom-ключа допустимо: "team:alpha:prod" — это custom.
func Parse(raw string) Key {
	switch {
	case raw == "" || raw == DefaultKey:
		return Key{Raw: DefaultKey, Kind: KindDefault, Value: DefaultKey}
	case strings.HasPrefix(raw, userPrefix):
		return Key{Raw: raw, Kind: KindUser, Value: strings.TrimPrefix(raw, userPrefix)}
	case strings.HasPrefix(raw, groupPrefix):
		return Key{Raw: raw, Kind: KindGroup, Value: strings.TrimPrefix(raw, groupPrefix)}
	default:
		return Key{Raw: raw, Kind: KindCustom, Value: raw}
	}
}

// UserKey возвращает ключ личного профиля пользователя.
func UserKey(subject string) string {
	return userPrefix + subject
}

// GroupKey возвращает ключ профиля группы.
func GroupKey(name string) string {
	return groupPrefix + name
}
