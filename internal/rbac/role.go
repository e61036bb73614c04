package rbac

import (
	"fmt"
	"strings"
)

// Role é o papel fechado de um usuário.
type Role string

const (
	RoleMaster  Role = "MASTER"
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

// AllRoles devolve os papéis na ordem de abrangência decrescente.
func AllRoles() []Role {
	return []Role{RoleMaster, RoleAdmin, RoleDoctor, RolePatient}
}

// ParseRole valida o nome do papel (sem diferenciar maiúsculas).
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleMaster:
		return RoleMaster, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RolePatient:
		return RolePatient, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// Valid indica se o papel pertence ao enum.
func (r Role) Valid() bool {
	switch r {
	case RoleMaster, RoleAdmin, RoleDoctor, RolePatient:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}
