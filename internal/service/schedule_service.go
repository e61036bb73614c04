package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

// Estados e recorrências aceitos para escalas.
const (
	ScheduleStatusPending   = "pending"
	ScheduleStatusConfirmed = "confirmed"
	ScheduleStatusTemporary = "temporary"
	ScheduleStatusCancelled = "cancelled"

	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

var (
	validStatuses    = map[string]bool{ScheduleStatusPending: true, ScheduleStatusConfirmed: true, ScheduleStatusTemporary: true, ScheduleStatusCancelled: true}
	validRecurrences = map[string]bool{RecurrenceNone: true, RecurrenceDaily: true, RecurrenceWeekly: true, RecurrenceMonthly: true}
)

type scheduleStore interface {
	ListSchedules(ctx context.Context, filter repo.ScheduleListFilter) ([]repo.Schedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (repo.Schedule, error)
	ScheduleConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, except *uuid.UUID) (bool, error)
	InsertSchedule(ctx context.Context, s repo.Schedule) (repo.Schedule, error)
	UpdateSchedule(ctx context.Context, s repo.Schedule) (repo.Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	GetUserByID(ctx context.Context, id uuid.UUID) (repo.UserWithProfile, error)
}

// ScheduleService mantém escalas médicas com o mesmo filtro territorial dos demais recursos.
type ScheduleService struct {
	repo      scheduleStore
	validator targetValidator
}

// NewScheduleService cria novo serviço.
func NewScheduleService(r scheduleStore, v targetValidator) *ScheduleService {
	return &ScheduleService{repo: r, validator: v}
}

// ScheduleInput descreve uma escala; campos nil assumem o padrão (ou o valor atual na atualização).
type ScheduleInput struct {
	DoctorID           *uuid.UUID
	HealthUnitID       *uuid.UUID
	StartAt            *time.Time
	EndAt              *time.Time
	Status             *string
	TotalSlots         *int
	AvailableSlots     *int
	IsRecurring        *bool
	RecurrenceType     *string
	RecurrenceEndDate  *time.Time
	RecurrenceWeekdays *string
	RRule              *string
	ExDates            []string
	Timezone           *string
	SubstituteDoctorID *uuid.UUID
	Notes              *string
}

// ScheduleQuery filtra a listagem; From e To juntos ativam a busca por intervalo.
type ScheduleQuery struct {
	HealthUnitID *uuid.UUID
	DoctorID     *uuid.UUID
	Status       *string
	From         *time.Time
	To           *time.Time
}

// List aplica o filtro territorial do ator sobre a consulta informada.
func (s *ScheduleService) List(ctx context.Context, actor scope.Actor, q ScheduleQuery) ([]repo.Schedule, error) {
	if (q.From == nil) != (q.To == nil) {
		return nil, fmt.Errorf("%w: start_date e end_date são obrigatórios juntos", ErrValidation)
	}
	if q.From != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: end_date anterior a start_date", ErrValidation)
	}
	if q.Status != nil && !validStatuses[*q.Status] {
		return nil, fmt.Errorf("%w: status inválido", ErrValidation)
	}

	f := scope.For(actor, scope.MedicalSchedule)
	if f.Deny {
		return []repo.Schedule{}, nil
	}
	schedules, err := s.repo.ListSchedules(ctx, repo.ScheduleListFilter{
		Territory:    territoryOf(f),
		HealthUnitID: q.HealthUnitID,
		DoctorID:     q.DoctorID,
		Status:       q.Status,
		From:         q.From,
		To:           q.To,
	})
	if err != nil {
		return nil, err
	}
	if schedules == nil {
		schedules = []repo.Schedule{}
	}
	return schedules, nil
}

// Get devolve a escala se estiver no território do ator.
func (s *ScheduleService) Get(ctx context.Context, actor scope.Actor, id uuid.UUID) (repo.Schedule, error) {
	sc, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return repo.Schedule{}, err
	}
	if err := scope.Check(actor, scope.MedicalSchedule, &sc.CityID, &sc.HealthUnitID); err != nil {
		return repo.Schedule{}, err
	}
	return sc, nil
}

// Create valida território, médicos e sobreposição antes de gravar.
func (s *ScheduleService) Create(ctx context.Context, actor scope.Actor, in ScheduleInput) (repo.Schedule, error) {
	if in.DoctorID == nil || in.HealthUnitID == nil || in.StartAt == nil || in.EndAt == nil {
		return repo.Schedule{}, fmt.Errorf("%w: doctor_id, health_unit_id, start_datetime e end_datetime são obrigatórios", ErrValidation)
	}
	sc := repo.Schedule{Status: ScheduleStatusPending, RecurrenceType: RecurrenceNone, ExDates: []string{}}
	applyScheduleInput(&sc, in)

	if _, err := s.validator.ValidateTarget(ctx, actor, scope.Target{HealthUnitID: &sc.HealthUnitID}); err != nil {
		return repo.Schedule{}, err
	}
	if err := s.check(ctx, sc, nil); err != nil {
		return repo.Schedule{}, err
	}

	created, err := s.repo.InsertSchedule(ctx, sc)
	if err != nil {
		return repo.Schedule{}, err
	}
	log.Info().Str("schedule_id", created.ID.String()).Str("doctor_id", created.DoctorID.String()).
		Str("actor_id", actor.UserID.String()).Msg("escala criada")
	return created, nil
}

// Update altera a escala; mover de unidade passa pela validação de escrita do ator.
func (s *ScheduleService) Update(ctx context.Context, actor scope.Actor, id uuid.UUID, in ScheduleInput) (repo.Schedule, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return repo.Schedule{}, err
	}
	next := current
	applyScheduleInput(&next, in)

	if next.HealthUnitID != current.HealthUnitID {
		if _, err := s.validator.ValidateTarget(ctx, actor, scope.Target{HealthUnitID: &next.HealthUnitID}); err != nil {
			return repo.Schedule{}, err
		}
	}
	if err := s.check(ctx, next, &current.ID); err != nil {
		return repo.Schedule{}, err
	}
	return s.repo.UpdateSchedule(ctx, next)
}

// Delete remove a escala do território do ator.
func (s *ScheduleService) Delete(ctx context.Context, actor scope.Actor, id uuid.UUID) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.DeleteSchedule(ctx, id)
}

// check valida campos, médicos envolvidos e sobreposição com escalas não canceladas.
func (s *ScheduleService) check(ctx context.Context, sc repo.Schedule, except *uuid.UUID) error {
	if !sc.EndAt.After(sc.StartAt) {
		return fmt.Errorf("%w: end_datetime deve ser posterior a start_datetime", ErrValidation)
	}
	if !validStatuses[sc.Status] {
		return fmt.Errorf("%w: status inválido", ErrValidation)
	}
	if !validRecurrences[sc.RecurrenceType] {
		return fmt.Errorf("%w: recurrence_type inválido", ErrValidation)
	}
	if sc.TotalSlots < 0 || sc.AvailableSlots < 0 || sc.AvailableSlots > sc.TotalSlots {
		return fmt.Errorf("%w: vagas inconsistentes", ErrValidation)
	}
	if err := s.requireDoctor(ctx, sc.DoctorID, "médico"); err != nil {
		return err
	}
	if sc.SubstituteDoctorID != nil {
		if err := s.requireDoctor(ctx, *sc.SubstituteDoctorID, "médico substituto"); err != nil {
			return err
		}
	}
	if sc.Status == ScheduleStatusCancelled {
		return nil
	}
	conflict, err := s.repo.ScheduleConflict(ctx, sc.DoctorID, sc.StartAt, sc.EndAt, except)
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("%w: já existe uma escala para este médico no horário especificado", ErrConflict)
	}
	return nil
}

func (s *ScheduleService) requireDoctor(ctx context.Context, id uuid.UUID, label string) error {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s não encontrado", ErrValidation, label)
		}
		return err
	}
	if u.Role != rbac.RoleDoctor || u.Doctor == nil {
		return fmt.Errorf("%w: %s não encontrado ou perfil inválido", ErrValidation, label)
	}
	return nil
}

func applyScheduleInput(sc *repo.Schedule, in ScheduleInput) {
	if in.DoctorID != nil {
		sc.DoctorID = *in.DoctorID
	}
	if in.HealthUnitID != nil {
		sc.HealthUnitID = *in.HealthUnitID
	}
	if in.StartAt != nil {
		sc.StartAt = *in.StartAt
	}
	if in.EndAt != nil {
		sc.EndAt = *in.EndAt
	}
	if in.Status != nil {
		sc.Status = *in.Status
	}
	if in.TotalSlots != nil {
		sc.TotalSlots = *in.TotalSlots
	}
	if in.AvailableSlots != nil {
		sc.AvailableSlots = *in.AvailableSlots
	}
	if in.IsRecurring != nil {
		sc.IsRecurring = *in.IsRecurring
	}
	if in.RecurrenceType != nil {
		sc.RecurrenceType = *in.RecurrenceType
	}
	if in.RecurrenceEndDate != nil {
		sc.RecurrenceEndDate = in.RecurrenceEndDate
	}
	if in.RecurrenceWeekdays != nil {
		sc.RecurrenceWeekdays = in.RecurrenceWeekdays
	}
	if in.RRule != nil {
		sc.RRule = in.RRule
	}
	if in.ExDates != nil {
		sc.ExDates = in.ExDates
	}
	if in.Timezone != nil {
		sc.Timezone = in.Timezone
	}
	if in.SubstituteDoctorID != nil {
		sc.SubstituteDoctorID = in.SubstituteDoctorID
	}
	if in.Notes != nil {
		sc.Notes = in.Notes
	}
}
