package rbac

import (
	"regexp"
	"sort"
	"strings"
)

// Permission é o nome canônico de uma capacidade, no formato recurso_ação.
type Permission string

const (
	UserCreate           Permission = "user_create"
	UserView             Permission = "user_view"
	UserUpdate           Permission = "user_update"
	UserDelete           Permission = "user_delete"
	UserList             Permission = "user_list"
	UserPermissionManage Permission = "user_permission_manage"

	DashboardView       Permission = "dashboard_view"
	DashboardStats      Permission = "dashboard_stats"
	DashboardReports    Permission = "dashboard_reports"
	DashboardDoctorView Permission = "dashboard_doctor_view"

	AppointmentCreate     Permission = "appointment_create"
	AppointmentView       Permission = "appointment_view"
	AppointmentUpdate     Permission = "appointment_update"
	AppointmentDelete     Permission = "appointment_delete"
	AppointmentList       Permission = "appointment_list"
	AppointmentCancel     Permission = "appointment_cancel"
	AppointmentReschedule Permission = "appointment_reschedule"

	PatientCreate Permission = "patient_create"
	PatientView   Permission = "patient_view"
	PatientUpdate Permission = "patient_update"
	PatientDelete Permission = "patient_delete"
	PatientList   Permission = "patient_list"

	DoctorCreate Permission = "doctor_create"
	DoctorView   Permission = "doctor_view"
	DoctorUpdate Permission = "doctor_update"
	DoctorDelete Permission = "doctor_delete"
	DoctorList   Permission = "doctor_list"

	MedicalRecordCreate Permission = "medical_record_create"
	MedicalRecordView   Permission = "medical_record_view"
	MedicalRecordUpdate Permission = "medical_record_update"
	MedicalRecordDelete Permission = "medical_record_delete"
	MedicalRecordList   Permission = "medical_record_list"

	MedicalScheduleCreate Permission = "medical_schedule_create"
	MedicalScheduleView   Permission = "medical_schedule_view"
	MedicalScheduleUpdate Permission = "medical_schedule_update"
	MedicalScheduleDelete Permission = "medical_schedule_delete"
	MedicalScheduleList   Permission = "medical_schedule_list"

	ProfileView   Permission = "profile_view"
	ProfileUpdate Permission = "profile_update"

	PermissionCreate Permission = "permission_create"
	PermissionView   Permission = "permission_view"
	PermissionUpdate Permission = "permission_update"
	PermissionDelete Permission = "permission_delete"

	RoleCreate Permission = "role_create"
	RoleView   Permission = "role_view"
	RoleUpdate Permission = "role_update"
	RoleDelete Permission = "role_delete"

	ConfigView   Permission = "config_view"
	ConfigUpdate Permission = "config_update"

	CityHallCreate Permission = "city_hall_create"
	CityHallView   Permission = "city_hall_view"
	CityHallUpdate Permission = "city_hall_update"
	CityHallDelete Permission = "city_hall_delete"
	CityHallList   Permission = "city_hall_list"

	HealthUnitCreate Permission = "health_unit_create"
	HealthUnitView   Permission = "health_unit_view"
	HealthUnitUpdate Permission = "health_unit_update"
	HealthUnitDelete Permission = "health_unit_delete"
	HealthUnitList   Permission = "health_unit_list"

	ReportView   Permission = "report_view"
	ReportExport Permission = "report_export"
)

var descriptions = map[Permission]string{
	UserCreate:           "Criar novos usuários",
	UserView:             "Visualizar dados de usuários",
	UserUpdate:           "Atualizar dados de usuários",
	UserDelete:           "Excluir usuários",
	UserList:             "Listar usuários",
	UserPermissionManage: "Gerenciar permissões específicas de usuários",

	DashboardView:       "Acessar dashboard",
	DashboardStats:      "Visualizar estatísticas",
	DashboardReports:    "Acessar relatórios do dashboard",
	DashboardDoctorView: "Visualizar dashboard do médico",

	AppointmentCreate:     "Criar agendamentos",
	AppointmentView:       "Visualizar agendamentos",
	AppointmentUpdate:     "Atualizar agendamentos",
	AppointmentDelete:     "Excluir agendamentos",
	AppointmentList:       "Listar agendamentos",
	AppointmentCancel:     "Cancelar agendamentos",
	AppointmentReschedule: "Reagendar agendamentos",

	PatientCreate: "Cadastrar pacientes",
	PatientView:   "Visualizar pacientes",
	PatientUpdate: "Atualizar pacientes",
	PatientDelete: "Desativar pacientes",
	PatientList:   "Listar pacientes",

	DoctorCreate: "Cadastrar médicos",
	DoctorView:   "Visualizar médicos",
	DoctorUpdate: "Atualizar médicos",
	DoctorDelete: "Desativar médicos",
	DoctorList:   "Listar médicos",

	MedicalRecordCreate: "Criar prontuários",
	MedicalRecordView:   "Visualizar prontuários",
	MedicalRecordUpdate: "Atualizar prontuários",
	MedicalRecordDelete: "Excluir prontuários",
	MedicalRecordList:   "Listar prontuários",

	MedicalScheduleCreate: "Criar escalas médicas",
	MedicalScheduleView:   "Visualizar escalas médicas",
	MedicalScheduleUpdate: "Atualizar escalas médicas",
	MedicalScheduleDelete: "Excluir escalas médicas",
	MedicalScheduleList:   "Listar escalas médicas",

	ProfileView:   "Visualizar perfil",
	ProfileUpdate: "Atualizar perfil",

	PermissionCreate: "Criar permissões",
	PermissionView:   "Visualizar permissões",
	PermissionUpdate: "Atualizar permissões",
	PermissionDelete: "Excluir permissões",

	RoleCreate: "Criar papéis",
	RoleView:   "Visualizar papéis",
	RoleUpdate: "Atualizar permissões de papéis",
	RoleDelete: "Excluir papéis",

	ConfigView:   "Visualizar configurações",
	ConfigUpdate: "Alterar configurações",

	CityHallCreate: "Cadastrar prefeituras",
	CityHallView:   "Visualizar prefeituras",
	CityHallUpdate: "Atualizar prefeituras",
	CityHallDelete: "Excluir prefeituras",
	CityHallList:   "Listar prefeituras",

	HealthUnitCreate: "Cadastrar unidades de saúde",
	HealthUnitView:   "Visualizar unidades de saúde",
	HealthUnitUpdate: "Atualizar unidades de saúde",
	HealthUnitDelete: "Excluir unidades de saúde",
	HealthUnitList:   "Listar unidades de saúde",

	ReportView:   "Visualizar relatórios",
	ReportExport: "Exportar relatórios",
}

var permissionPattern = regexp.MustCompile(`^[a-z]+(_[a-z]+)*$`)

// AllPermissions devolve o catálogo completo em ordem alfabética.
func AllPermissions() []Permission {
	out := make([]Permission, 0, len(descriptions))
	for p := range descriptions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsKnown indica se o nome pertence ao catálogo.
func IsKnown(p Permission) bool {
	_, ok := descriptions[p]
	return ok
}

// WellFormed indica se o nome segue o formato recurso_ação.
func WellFormed(p Permission) bool {
	return permissionPattern.MatchString(string(p))
}

// Normalize remove apenas espaços acidentais; não altera caixa nem separadores.
func Normalize(raw string) Permission {
	return Permission(strings.TrimSpace(raw))
}

// Describe devolve a descrição legível da permissão.
func Describe(p Permission) string {
	if d, ok := descriptions[p]; ok {
		return d
	}
	return "Permissão: " + string(p)
}

// Resource é o trecho antes do primeiro "_" ("system" quando não há separador).
func (p Permission) Resource() string {
	resource, _, ok := strings.Cut(string(p), "_")
	if !ok {
		return "system"
	}
	return resource
}

// Action é o trecho após o primeiro "_".
func (p Permission) Action() string {
	_, action, ok := strings.Cut(string(p), "_")
	if !ok {
		return string(p)
	}
	return action
}

func (p Permission) String() string {
	return string(p)
}

var doctorDefaults = []Permission{
	DashboardView, DashboardStats, DashboardDoctorView,
	AppointmentView, AppointmentUpdate, AppointmentList,
	PatientView, PatientList,
	MedicalRecordCreate, MedicalRecordView, MedicalRecordUpdate, MedicalRecordList,
	MedicalScheduleView, MedicalScheduleUpdate, MedicalScheduleList,
	ProfileView, ProfileUpdate,
	ConfigView,
}

var adminDefaults = []Permission{
	UserCreate, UserView, UserUpdate, UserDelete, UserList,
	DashboardView, DashboardStats, DashboardReports,
	AppointmentCreate, AppointmentView, AppointmentUpdate, AppointmentDelete,
	AppointmentList, AppointmentCancel, AppointmentReschedule,
	PatientCreate, PatientView, PatientUpdate, PatientDelete, PatientList,
	DoctorCreate, DoctorView, DoctorUpdate, DoctorDelete, DoctorList,
	MedicalRecordView, MedicalRecordList,
	MedicalScheduleCreate, MedicalScheduleView, MedicalScheduleUpdate,
	MedicalScheduleDelete, MedicalScheduleList,
	ProfileView, ProfileUpdate,
	PermissionView, RoleView, ConfigView,
	CityHallView, CityHallList,
	HealthUnitCreate, HealthUnitView, HealthUnitUpdate, HealthUnitDelete, HealthUnitList,
	ReportView, ReportExport,
}

var patientDefaults = []Permission{
	PatientView,
}

// DefaultPermissions devolve o conjunto padrão de um papel.
// MASTER recebe o catálogo inteiro como linhas reais de role_permissions.
func DefaultPermissions(role Role) []Permission {
	switch role {
	case RoleMaster:
		return AllPermissions()
	case RoleAdmin:
		return clonePermissions(adminDefaults)
	case RoleDoctor:
		return clonePermissions(doctorDefaults)
	case RolePatient:
		return clonePermissions(patientDefaults)
	default:
		return nil
	}
}

func clonePermissions(in []Permission) []Permission {
	out := make([]Permission, len(in))
	copy(out, in)
	return out
}
