package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const scheduleColumns = `
    s.id, s.doctor_id, s.health_unit_id, h.city_hall_id, s.start_datetime, s.end_datetime, s.status,
    s.total_slots, s.available_slots, s.is_recurring, s.recurrence_type, s.recurrence_end_date,
    s.recurrence_weekdays, s.rrule, s.exdates, s.timezone, s.substitute_doctor_id, s.notes,
    p.name, h.name, s.created_at, s.updated_at`

const scheduleFrom = `
    FROM medical_schedules s
    JOIN health_units h ON h.id = s.health_unit_id
    LEFT JOIN profiles p ON p.user_id = s.doctor_id`

// ScheduleListFilter combina território, médico, estado e janela de datas.
// From/To juntos ativam a busca por intervalo (recorrentes entram enquanto vigentes).
type ScheduleListFilter struct {
	Territory    TerritoryFilter
	HealthUnitID *uuid.UUID
	DoctorID     *uuid.UUID
	Status       *string
	From         *time.Time
	To           *time.Time
}

// ListSchedules devolve escalas ordenadas pelo início.
func (q *Queries) ListSchedules(ctx context.Context, filter ScheduleListFilter) ([]Schedule, error) {
	query := `SELECT` + scheduleColumns + scheduleFrom + `
        WHERE ($1::uuid IS NULL OR h.city_hall_id = $1)
          AND ($2::uuid IS NULL OR s.health_unit_id = $2)
          AND ($3::uuid IS NULL OR s.health_unit_id = $3)
          AND ($4::uuid IS NULL OR s.doctor_id = $4)
          AND ($5::text IS NULL OR s.status = $5)
          AND ($6::timestamptz IS NULL OR (
                ((s.start_datetime <= $7 AND s.end_datetime >= $6) OR s.is_recurring)
                AND (s.recurrence_end_date IS NULL OR s.recurrence_end_date >= $6)))
        ORDER BY s.start_datetime ASC`

	rows, err := q.db.Query(ctx, query,
		filter.Territory.CityID, filter.Territory.HealthUnitID, filter.HealthUnitID,
		filter.DoctorID, filter.Status, filter.From, filter.To,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSchedule busca escala por ID com prefeitura derivada da unidade.
func (q *Queries) GetSchedule(ctx context.Context, id uuid.UUID) (Schedule, error) {
	query := `SELECT` + scheduleColumns + scheduleFrom + ` WHERE s.id = $1`
	return scanSchedule(q.db.QueryRow(ctx, query, id))
}

// ScheduleConflict informa se o médico já tem escala não cancelada sobreposta ao intervalo.
func (q *Queries) ScheduleConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, except *uuid.UUID) (bool, error) {
	const query = `
        SELECT EXISTS(
            SELECT 1 FROM medical_schedules
            WHERE doctor_id = $1
              AND status <> 'cancelled'
              AND start_datetime < $3
              AND end_datetime > $2
              AND ($4::uuid IS NULL OR id <> $4)
        )
    `
	var exists bool
	err := q.db.QueryRow(ctx, query, doctorID, start, end, except).Scan(&exists)
	return exists, err
}

// InsertSchedule cria a escala e devolve a linha completa.
func (q *Queries) InsertSchedule(ctx context.Context, s Schedule) (Schedule, error) {
	const query = `
        INSERT INTO medical_schedules (
            id, doctor_id, health_unit_id, start_datetime, end_datetime, status, total_slots,
            available_slots, is_recurring, recurrence_type, recurrence_end_date, recurrence_weekdays,
            rrule, exdates, timezone, substitute_doctor_id, notes
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
    `
	id := uuid.New()
	if _, err := q.db.Exec(ctx, query, scheduleArgs(id, s)...); err != nil {
		return Schedule{}, mapFKErr(err)
	}
	return q.GetSchedule(ctx, id)
}

// UpdateSchedule regrava todos os campos editáveis.
func (q *Queries) UpdateSchedule(ctx context.Context, s Schedule) (Schedule, error) {
	const query = `
        UPDATE medical_schedules
        SET doctor_id = $2, health_unit_id = $3, start_datetime = $4, end_datetime = $5, status = $6,
            total_slots = $7, available_slots = $8, is_recurring = $9, recurrence_type = $10,
            recurrence_end_date = $11, recurrence_weekdays = $12, rrule = $13, exdates = $14,
            timezone = $15, substitute_doctor_id = $16, notes = $17, updated_at = now()
        WHERE id = $1
    `
	tag, err := q.db.Exec(ctx, query, scheduleArgs(s.ID, s)...)
	if err != nil {
		return Schedule{}, mapFKErr(err)
	}
	if tag.RowsAffected() == 0 {
		return Schedule{}, ErrNotFound
	}
	return q.GetSchedule(ctx, s.ID)
}

// DeleteSchedule remove a escala.
func (q *Queries) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM medical_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scheduleArgs(id uuid.UUID, s Schedule) []any {
	exdates := s.ExDates
	if exdates == nil {
		exdates = []string{}
	}
	return []any{
		id, s.DoctorID, s.HealthUnitID, s.StartAt, s.EndAt, s.Status, s.TotalSlots,
		s.AvailableSlots, s.IsRecurring, s.RecurrenceType, s.RecurrenceEndDate, s.RecurrenceWeekdays,
		s.RRule, exdates, s.Timezone, s.SubstituteDoctorID, s.Notes,
	}
}

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	if err := row.Scan(&s.ID, &s.DoctorID, &s.HealthUnitID, &s.CityID, &s.StartAt, &s.EndAt, &s.Status,
		&s.TotalSlots, &s.AvailableSlots, &s.IsRecurring, &s.RecurrenceType, &s.RecurrenceEndDate,
		&s.RecurrenceWeekdays, &s.RRule, &s.ExDates, &s.Timezone, &s.SubstituteDoctorID, &s.Notes,
		&s.DoctorName, &s.HealthUnitName, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Schedule{}, mapErr(err)
	}
	return s, nil
}
