// gate.go — правила авторизации операций над профилями.
// Группы из IdP приходят в разных формах: "devops", "/devops",
// "/parent/devops" — сравнение терпимо к регистру и префиксу пути.
package scope

import "strings"

// Gate — проверка прав на операции с профилями.
type Gate struct {
	// adminGroup — имя группы администраторов дашборда
	adminGroup string
}

// NewGate создаёт проверку прав. adminGroup — имя группы
// администраторов (например, devops).
func NewGate(adminGroup string) *Gate {
	return &Gate{adminGroup: adminGroup}
}

// IsAdmin проверяет, входит ли пользователь в группу администраторов.
func (g *Gate) IsAdmin(groups []string) bool {
	for _, name := range groups {
		if matchGroup(name, g.adminGroup) {
			return true
		}
	}
	return false
}

// CanDelete проверяет право на удаление профиля key.
// Правила (по порядку):
//   - default не удаляется никогда и никем;
//   - пользователь удаляет свой личный профиль user:<sub>;
//   - участник группы удаляет профиль своей группы group:<name>;
//   - остальные формы ключа не удаляются.
//
// Административное удаление произвольного ключа идёт через отдельную
// admin-операцию и через эту проверку не проходит.
func (g *Gate) CanDelete(subject string, groups []string, key Key) bool {
	switch key.Kind {
	case KindUser:
		return subject != "" && key.Value == subject
	case KindGroup:
		for _, name := range groups {
			if matchGroup(name, key.Value) {
				return true
			}
		}
		return false
	default:
		// default и custom-ключи
		return false
	}
}

// matchGroup сравнивает имя группы из IdP с искомым именем.
// Сравнение без учёта регистра; имя из IdP может быть путём
// ("/parent/devops") — совпадением считается и последний сегмент.
func matchGroup(idpName, want string) bool {
	if want == "" {
		return false
	}

	name := strings.TrimPrefix(idpName, "/")
	if strings.EqualFold(name, want) {
		return true
	}

	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return strings.EqualFold(name[idx+1:], want)
	}
	return false
}
