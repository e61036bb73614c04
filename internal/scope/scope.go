// Package scope restringe leituras e escritas ao território (prefeitura e unidade de saúde) do ator.
package scope

import (
	"errors"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
)

var (
	// ErrForbidden indica registro fora do território do ator.
	ErrForbidden = errors.New("acesso negado")
	// ErrCityHallNotFound indica prefeitura inexistente.
	ErrCityHallNotFound = errors.New("prefeitura não encontrada")
	// ErrHealthUnitNotFound indica unidade inexistente ou de outra prefeitura.
	ErrHealthUnitNotFound = errors.New("unidade de saúde não encontrada")
)

// Actor é o usuário autenticado com o território lido do banco.
type Actor struct {
	UserID       uuid.UUID
	Role         rbac.Role
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// ActorFromSubject monta o ator a partir da linha atual do usuário.
func ActorFromSubject(s rbac.Subject) Actor {
	return Actor{UserID: s.ID, Role: s.Role, CityID: s.CityID, HealthUnitID: s.HealthUnitID}
}

// Resource identifica o tipo de registro filtrado.
type Resource string

const (
	Patient         Resource = "patient"
	Doctor          Resource = "doctor"
	MedicalRecord   Resource = "medical_record"
	MedicalSchedule Resource = "medical_schedule"
	HealthUnit      Resource = "health_unit"
	CityHall        Resource = "city_hall"
	User            Resource = "user"
)

// Filter é o predicado que os serviços aplicam às consultas.
// Deny resolve para zero registros; Unrestricted dispensa filtro.
type Filter struct {
	Unrestricted bool
	Deny         bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// For calcula o filtro de leitura para o ator e recurso.
func For(actor Actor, resource Resource) Filter {
	switch actor.Role {
	case rbac.RoleMaster:
		return Filter{Unrestricted: true}
	case rbac.RoleAdmin:
		if actor.CityID == nil {
			return Filter{Deny: true}
		}
		f := Filter{CityID: copyID(actor.CityID)}
		if actor.HealthUnitID != nil && resource != CityHall {
			f.HealthUnitID = copyID(actor.HealthUnitID)
		}
		return f
	case rbac.RoleDoctor:
		if resource == CityHall {
			if actor.CityID == nil {
				return Filter{Deny: true}
			}
			return Filter{CityID: copyID(actor.CityID)}
		}
		if actor.HealthUnitID == nil {
			return Filter{Deny: true}
		}
		return Filter{CityID: copyID(actor.CityID), HealthUnitID: copyID(actor.HealthUnitID)}
	case rbac.RolePatient:
		return Filter{Deny: true}
	default:
		return Filter{Deny: true}
	}
}

// Allows indica se um registro com o território informado passa pelo filtro.
func (f Filter) Allows(cityID, healthUnitID *uuid.UUID) bool {
	if f.Deny {
		return false
	}
	if f.Unrestricted {
		return true
	}
	if f.CityID != nil && !sameID(f.CityID, cityID) {
		return false
	}
	if f.HealthUnitID != nil && !sameID(f.HealthUnitID, healthUnitID) {
		return false
	}
	return true
}

// Check devolve ErrForbidden quando o registro está fora do território do ator.
func Check(actor Actor, resource Resource, cityID, healthUnitID *uuid.UUID) error {
	if !For(actor, resource).Allows(cityID, healthUnitID) {
		return ErrForbidden
	}
	return nil
}

func sameID(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
