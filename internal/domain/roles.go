package domain

import "strings"

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole приводит строку к известной роли; неизвестные значения
// деградируют до обычного пользователя.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleModerator:
		return RoleModerator
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Action описывает привилегированную операцию.
type Action string

const (
	ActionVerify     Action = "verify"
	ActionHide       Action = "hide"
	ActionModDelete  Action = "mod_delete"
	ActionHardDelete Action = "hard_delete"
	ActionViewAudit  Action = "view_audit"
)

// Единая таблица возможностей: все мутирующие операции проверяют роль
// только через Authorize, без разбросанных сравнений строк.
var capabilities = map[Role]map[Action]struct{}{
	RoleModerator: {
		ActionVerify:    {},
		ActionHide:      {},
		ActionModDelete: {},
		ActionViewAudit: {},
	},
	RoleAdmin: {
		ActionVerify:     {},
		ActionHide:       {},
		ActionModDelete:  {},
		ActionHardDelete: {},
		ActionViewAudit:  {},
	},
}

// Authorize проверяет, разрешена ли операция для роли.
func Authorize(role Role, action Action) bool {
	caps, ok := capabilities[role]
	if !ok {
		return false
	}
	_, ok = caps[action]
	return ok
}

// Caller описывает аутентифицированного инициатора запроса.
type Caller struct {
	ID   int64
	Role Role
}

// IsAdmin сообщает, является ли инициатор администратором.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
