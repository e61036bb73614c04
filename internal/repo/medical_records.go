package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const medicalRecordColumns = `
    m.id, m.patient_id, p.name, u.city_id, u.health_unit_id, m.blood_type, m.height_cm, m.weight_kg,
    m.allergies, m.chronic_diseases, m.notes, m.is_active, m.created_at, m.updated_at`

const medicalRecordFrom = `
    FROM medical_records m
    JOIN users u ON u.id = m.patient_id
    LEFT JOIN profiles p ON p.user_id = m.patient_id`

// ListMedicalRecords filtra pelo território do paciente.
func (q *Queries) ListMedicalRecords(ctx context.Context, territory TerritoryFilter) ([]MedicalRecord, error) {
	query := `SELECT` + medicalRecordColumns + medicalRecordFrom + `
        WHERE ($1::uuid IS NULL OR u.city_id = $1)
          AND ($2::uuid IS NULL OR u.health_unit_id = $2)
        ORDER BY m.created_at DESC`

	rows, err := q.db.Query(ctx, query, territory.CityID, territory.HealthUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MedicalRecord
	for rows.Next() {
		m, err := scanMedicalRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMedicalRecord busca prontuário por ID.
func (q *Queries) GetMedicalRecord(ctx context.Context, id uuid.UUID) (MedicalRecord, error) {
	query := `SELECT` + medicalRecordColumns + medicalRecordFrom + ` WHERE m.id = $1`
	return scanMedicalRecord(q.db.QueryRow(ctx, query, id))
}

// GetMedicalRecordByPatient busca o prontuário único do paciente.
func (q *Queries) GetMedicalRecordByPatient(ctx context.Context, patientID uuid.UUID) (MedicalRecord, error) {
	query := `SELECT` + medicalRecordColumns + medicalRecordFrom + ` WHERE m.patient_id = $1`
	return scanMedicalRecord(q.db.QueryRow(ctx, query, patientID))
}

// InsertMedicalRecord cria o prontuário; um segundo prontuário do mesmo paciente gera ErrConflict.
func (q *Queries) InsertMedicalRecord(ctx context.Context, m MedicalRecord) (MedicalRecord, error) {
	const query = `
        INSERT INTO medical_records (
            id, patient_id, blood_type, height_cm, weight_kg, allergies, chronic_diseases, notes, is_active
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	id := uuid.New()
	if _, err := q.db.Exec(ctx, query, medicalRecordArgs(id, m)...); err != nil {
		return MedicalRecord{}, mapErr(err)
	}
	return q.GetMedicalRecord(ctx, id)
}

// UpdateMedicalRecord regrava os campos clínicos.
func (q *Queries) UpdateMedicalRecord(ctx context.Context, m MedicalRecord) (MedicalRecord, error) {
	const query = `
        UPDATE medical_records
        SET patient_id = $2, blood_type = $3, height_cm = $4, weight_kg = $5, allergies = $6,
            chronic_diseases = $7, notes = $8, is_active = $9, updated_at = now()
        WHERE id = $1
    `
	tag, err := q.db.Exec(ctx, query, medicalRecordArgs(m.ID, m)...)
	if err != nil {
		return MedicalRecord{}, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return MedicalRecord{}, ErrNotFound
	}
	return q.GetMedicalRecord(ctx, m.ID)
}

// DeleteMedicalRecord remove o prontuário.
func (q *Queries) DeleteMedicalRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func medicalRecordArgs(id uuid.UUID, m MedicalRecord) []any {
	allergies, chronic := m.Allergies, m.ChronicDiseases
	if allergies == nil {
		allergies = []string{}
	}
	if chronic == nil {
		chronic = []string{}
	}
	return []any{id, m.PatientID, m.BloodType, m.HeightCM, m.WeightKG, allergies, chronic, m.Notes, m.Active}
}

func scanMedicalRecord(row pgx.Row) (MedicalRecord, error) {
	var m MedicalRecord
	if err := row.Scan(&m.ID, &m.PatientID, &m.PatientName, &m.CityID, &m.HealthUnitID, &m.BloodType,
		&m.HeightCM, &m.WeightKG, &m.Allergies, &m.ChronicDiseases, &m.Notes, &m.Active,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return MedicalRecord{}, mapErr(err)
	}
	return m, nil
}
