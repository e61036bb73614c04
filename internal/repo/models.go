package repo

import (
	"time"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
)

// User representa a identidade e o sujeito de autorização.
type User struct {
	ID           uuid.UUID
	Email        string
	CPF          string
	PasswordHash string
	Role         rbac.Role
	Active       bool
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
	Allowed      rbac.Overrides
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile guarda os dados pessoais do usuário.
type Profile struct {
	UserID    uuid.UUID
	Name      string
	BirthDate *time.Time
	Gender    *string
	SUSCard   *string
	AvatarURL *string
}

// DoctorProfile complementa o perfil de médicos.
type DoctorProfile struct {
	UserID    uuid.UUID
	CRMNumber string
	CRMUF     string
	Specialty string
}

// UserWithProfile agrega usuário e perfis opcionais.
type UserWithProfile struct {
	User
	Profile *Profile
	Doctor  *DoctorProfile
}

// CityHall é a prefeitura (raiz territorial).
type CityHall struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CNPJ      string    `json:"cnpj"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zip_code"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthUnit pertence a exatamente uma prefeitura.
type HealthUnit struct {
	ID         uuid.UUID `json:"id"`
	CityHallID uuid.UUID `json:"city_hall_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	ZipCode    string    `json:"zip_code"`
	Phone      *string   `json:"phone"`
	Email      *string   `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Schedule é um plantão/escala médica numa unidade.
type Schedule struct {
	ID                 uuid.UUID  `json:"id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	HealthUnitID       uuid.UUID  `json:"health_unit_id"`
	CityID             uuid.UUID  `json:"city_id"`
	StartAt            time.Time  `json:"start_datetime"`
	EndAt              time.Time  `json:"end_datetime"`
	Status             string     `json:"status"`
	TotalSlots         int        `json:"total_slots"`
	AvailableSlots     int        `json:"available_slots"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrenceType     string     `json:"recurrence_type"`
	RecurrenceEndDate  *time.Time `json:"recurrence_end_date"`
	RecurrenceWeekdays *string    `json:"recurrence_weekdays"`
	RRule              *string    `json:"rrule"`
	ExDates            []string   `json:"exdates"`
	Timezone           *string    `json:"tz"`
	SubstituteDoctorID *uuid.UUID `json:"substitute_doctor_id"`
	Notes              *string    `json:"notes"`
	DoctorName         *string    `json:"doctor_name"`
	HealthUnitName     string     `json:"health_unit_name"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TerritoryFilter restringe consultas; campos nil não filtram.
type TerritoryFilter struct {
	CityID       *uuid.UUID
	HealthUnitID *uuid.UUID
}

// MedicalRecord é o prontuário do paciente; o território vem do cadastro do paciente.
type MedicalRecord struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PatientName     *string    `json:"patient_name"`
	CityID          *uuid.UUID `json:"city_id"`
	HealthUnitID    *uuid.UUID `json:"health_unit_id"`
	BloodType       *string    `json:"blood_type"`
	HeightCM        *float64   `json:"height"`
	WeightKG        *float64   `json:"weight"`
	Allergies       []string   `json:"allergies"`
	ChronicDiseases []string   `json:"chronic_diseases"`
	Notes           *string    `json:"notes"`
	Active          bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
