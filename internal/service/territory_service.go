package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

type territoryStore interface {
	ListCityHalls(ctx context.Context, cityID *uuid.UUID) ([]repo.CityHall, error)
	GetCityHall(ctx context.Context, id uuid.UUID) (repo.CityHall, error)
	InsertCityHall(ctx context.Context, c repo.CityHall) (repo.CityHall, error)
	UpdateCityHall(ctx context.Context, c repo.CityHall) (repo.CityHall, error)
	DeleteCityHall(ctx context.Context, id uuid.UUID) error
	ListHealthUnits(ctx context.Context, filter repo.TerritoryFilter) ([]repo.HealthUnit, error)
	GetHealthUnit(ctx context.Context, id uuid.UUID) (repo.HealthUnit, error)
	InsertHealthUnit(ctx context.Context, h repo.HealthUnit) (repo.HealthUnit, error)
	UpdateHealthUnit(ctx context.Context, h repo.HealthUnit) (repo.HealthUnit, error)
	DeleteHealthUnit(ctx context.Context, id uuid.UUID) error
}

// CityHallInput descreve uma prefeitura.
type CityHallInput struct {
	Name    string
	CNPJ    string
	Email   string
	Phone   string
	Address string
	City    string
	State   string
	ZipCode string
	Active  *bool
}

// HealthUnitInput descreve uma unidade de saúde.
type HealthUnitInput struct {
	CityHallID uuid.UUID
	Name       string
	Address    string
	City       string
	State      string
	ZipCode    string
	Phone      *string
	Email      *string
}

// CityHallService mantém prefeituras.
type CityHallService struct {
	repo territoryStore
}

// NewCityHallService cria novo serviço.
func NewCityHallService(r territoryStore) *CityHallService {
	return &CityHallService{repo: r}
}

// List devolve as prefeituras visíveis ao ator.
func (s *CityHallService) List(ctx context.Context, actor scope.Actor) ([]repo.CityHall, error) {
	f := scope.For(actor, scope.CityHall)
	if f.Deny {
		return []repo.CityHall{}, nil
	}
	return s.repo.ListCityHalls(ctx, f.CityID)
}

// Get devolve a prefeitura se estiver no território do ator.
func (s *CityHallService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.CityHall, error) {
	c, err := s.repo.GetCityHall(ctx, id)
	if err != nil {
		return repo.CityHall{}, err
	}
	if err := scope.Check(actor, scope.CityHall, &c.ID, nil); err != nil {
		return repo.CityHall{}, err
	}
	return c, nil
}

// Create exige escopo irrestrito.
func (s *CityHallService) Create(ctx context.Context, actor scope.Actor, in CityHallInput) (repo.CityHall, error) {
	if !scope.For(actor, scope.CityHall).Unrestricted {
		return repo.CityHall{}, scope.ErrForbidden
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	created, err := s.repo.InsertCityHall(ctx, cityHallFrom(uuid.Nil, in, active))
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return repo.CityHall{}, fmt.Errorf("%w: CNPJ já cadastrado", ErrConflict)
		}
		return repo.CityHall{}, err
	}
	log.Info().Str("city_hall_id", created.ID.String()).Msg("prefeitura criada")
	return created, nil
}

// Update regrava a prefeitura dentro do território do ator.
func (s *CityHallService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in CityHallInput) (repo.CityHall, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return repo.CityHall{}, err
	}
	active := current.Active
	if in.Active != nil {
		active = *in.Active
	}
	updated, err := s.repo.UpdateCityHall(ctx, cityHallFrom(id, in, active))
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return repo.CityHall{}, fmt.Errorf("%w: CNPJ já cadastrado", ErrConflict)
		}
		return repo.CityHall{}, err
	}
	return updated, nil
}

// Delete remove a prefeitura; recusa quando há unidades ou usuários vinculados.
func (s *CityHallService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if !scope.For(actor, scope.CityHall).Unrestricted {
		return scope.ErrForbidden
	}
	if err := s.repo.DeleteCityHall(ctx, id); err != nil {
		if errors.Is(err, repo.ErrInUse) {
			return fmt.Errorf("%w: prefeitura possui vínculos", ErrConflict)
		}
		return err
	}
	return nil
}

func cityHallFrom(id uuid.UUID, in CityHallInput, active bool) repo.CityHall {
	return repo.CityHall{
		ID:      id,
		Name:    in.Name,
		CNPJ:    in.CNPJ,
		Email:   in.Email,
		Phone:   in.Phone,
		Address: in.Address,
		City:    in.City,
		State:   in.State,
		ZipCode: in.ZipCode,
		Active:  active,
	}
}

// HealthUnitService mantém unidades de saúde.
type HealthUnitService struct {
	repo      territoryStore
	validator targetValidator
}

// NewHealthUnitService cria novo serviço.
func NewHealthUnitService(r territoryStore, v targetValidator) *HealthUnitService {
	return &HealthUnitService{repo: r, validator: v}
}

// List devolve as unidades visíveis ao ator.
func (s *HealthUnitService) List(ctx context.Context, actor scope.Actor) ([]repo.HealthUnit, error) {
	f := scope.For(actor, scope.HealthUnit)
	if f.Deny {
		return []repo.HealthUnit{}, nil
	}
	return s.repo.ListHealthUnits(ctx, territoryOf(f))
}

// Get devolve a unidade se estiver no território do ator.
func (s *HealthUnitService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.HealthUnit, error) {
	h, err := s.repo.GetHealthUnit(ctx, id)
	if err != nil {
		return repo.HealthUnit{}, err
	}
	if err := scope.Check(actor, scope.HealthUnit, &h.CityHallID, &h.ID); err != nil {
		return repo.HealthUnit{}, err
	}
	return h, nil
}

// Create valida a prefeitura alvo contra o território do ator.
func (s *HealthUnitService) Create(ctx context.Context, actor scope.Actor, in HealthUnitInput) (repo.HealthUnit, error) {
	cityID := in.CityHallID
	if _, err := s.validator.ValidateTarget(ctx, actor, scope.Target{CityID: &cityID}); err != nil {
		return repo.HealthUnit{}, err
	}
	created, err := s.repo.InsertHealthUnit(ctx, healthUnitFrom(uuid.Nil, in))
	if err != nil {
		return repo.HealthUnit{}, err
	}
	log.Info().Str("health_unit_id", created.ID.String()).Str("city_hall_id", created.CityHallID.String()).Msg("unidade criada")
	return created, nil
}

// Update regrava a unidade; mover para outra prefeitura passa pela validação de escrita.
func (s *HealthUnitService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in HealthUnitInput) (repo.HealthUnit, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return repo.HealthUnit{}, err
	}
	if in.CityHallID == uuid.Nil {
		in.CityHallID = current.CityHallID
	}
	if in.CityHallID != current.CityHallID {
		cityID := in.CityHallID
		if _, err := s.validator.ValidateTarget(ctx, actor, scope.Target{CityID: &cityID}); err != nil {
			return repo.HealthUnit{}, err
		}
	}
	return s.repo.UpdateHealthUnit(ctx, healthUnitFrom(id, in))
}

// Delete remove a unidade; recusa quando há usuários ou escalas vinculados.
func (s *HealthUnitService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteHealthUnit(ctx, id); err != nil {
		if errors.Is(err, repo.ErrInUse) {
			return fmt.Errorf("%w: unidade possui vínculos", ErrConflict)
		}
		return err
	}
	return nil
}

func healthUnitFrom(id uuid.UUID, in HealthUnitInput) repo.HealthUnit {
	return repo.HealthUnit{
		ID:         id,
		CityHallID: in.CityHallID,
		Name:       in.Name,
		Address:    in.Address,
		City:       in.City,
		State:      in.State,
		ZipCode:    in.ZipCode,
		Phone:      in.Phone,
		Email:      in.Email,
	}
}
