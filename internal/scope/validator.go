package scope

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
)

// Territory consulta prefeituras e unidades para validar escritas.
type Territory interface {
	CityHallExists(ctx context.Context, id uuid.UUID) (bool, error)
	HealthUnitCityID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error)
}

// Target é o território de um registro a ser criado ou movido.
type Target struct {
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// Validator aplica as regras de escrita territoriais.
type Validator struct {
	territory Territory
}

// NewValidator cria o validador sobre o repositório territorial.
func NewValidator(t Territory) *Validator {
	return &Validator{territory: t}
}

// ValidateTarget confere existência e pertinência do alvo e depois a autoridade do ator.
// Quando só a unidade é informada, a prefeitura é derivada dela.
func (v *Validator) ValidateTarget(ctx context.Context, actor Actor, target Target) (Target, error) {
	resolved := Target{CityID: copyID(target.CityID), HealthUnitID: copyID(target.HealthUnitID)}

	if resolved.HealthUnitID != nil {
		unitCity, found, err := v.territory.HealthUnitCityID(ctx, *resolved.HealthUnitID)
		if err != nil {
			return Target{}, err
		}
		if !found {
			return Target{}, ErrHealthUnitNotFound
		}
		if resolved.CityID == nil {
			resolved.CityID = &unitCity
		} else if *resolved.CityID != unitCity {
			return Target{}, fmt.Errorf("%w: unidade não pertence à prefeitura", ErrHealthUnitNotFound)
		}
	}

	if resolved.CityID != nil {
		exists, err := v.territory.CityHallExists(ctx, *resolved.CityID)
		if err != nil {
			return Target{}, err
		}
		if !exists {
			return Target{}, ErrCityHallNotFound
		}
	}

	if err := authorizeTarget(actor, resolved); err != nil {
		return Target{}, err
	}
	return resolved, nil
}

func authorizeTarget(actor Actor, target Target) error {
	switch actor.Role {
	case rbac.RoleMaster:
		return nil
	case rbac.RoleAdmin:
		if actor.CityID == nil || !sameID(actor.CityID, target.CityID) {
			return ErrForbidden
		}
		if actor.HealthUnitID != nil && !sameID(actor.HealthUnitID, target.HealthUnitID) {
			return ErrForbidden
		}
		return nil
	case rbac.RoleDoctor:
		if actor.HealthUnitID == nil || !sameID(actor.HealthUnitID, target.HealthUnitID) {
			return ErrForbidden
		}
		return nil
	case rbac.RolePatient:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}
