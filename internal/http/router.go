package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/agendasaude/api/internal/config"
	httpmiddleware "github.com/agendasaude/api/internal/http/middleware"
	"github.com/agendasaude/api/internal/metrics"
	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/service"
)

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Services agrupa as dependências de domínio montadas em main.
type Services struct {
	Auth           *service.AuthService
	RBAC           *rbac.Engine
	Users          *service.UserService
	Patients       *service.PatientService
	Doctors        *service.DoctorService
	CityHalls      *service.CityHallService
	HealthUnits    *service.HealthUnitService
	Schedules      *service.ScheduleService
	MedicalRecords *service.MedicalRecordService
}

type Handler struct {
	cfg           *config.Config
	db            dbPinger
	redis         redisPinger
	gate          *httpmiddleware.Gate
	svc           Services
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
}

// NewRouter devolve roteador configurado. Cada rota privada declara suas permissões no Gate.
func NewRouter(cfg *config.Config, db dbPinger, redisClient redisPinger, svc Services) http.Handler {
	h := &Handler{
		cfg:           cfg,
		db:            db,
		redis:         redisClient,
		gate:          httpmiddleware.NewGate(svc.Auth.Tokens(), svc.RBAC),
		svc:           svc,
		publicLimiter: httpmiddleware.NewRateLimiter("public", cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter("auth", cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
	}
	need := h.gate.Require

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Metrics)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)
		public.Method(http.MethodGet, "/metrics", metrics.Handler())
		public.Post("/auth/login", h.Login)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter, svc.Auth.Tokens()))

		private.With(need()).Get("/auth/me", h.Me)

		private.Route("/rbac", func(rb chi.Router) {
			rb.With(need(rbac.PermissionCreate, rbac.RoleCreate)).Post("/sync", h.SyncRBAC)
			rb.With(need()).Get("/permissions", h.ListPermissions)
			rb.With(need()).Get("/my-permissions", h.MyPermissions)
			rb.With(need(rbac.UserList)).Get("/users", h.ListUsersWithPermissions)

			rb.Route("/user/{userID}/permissions", func(u chi.Router) {
				u.With(need()).Get("/", h.UserPermissions)
				u.With(need(rbac.UserPermissionManage)).Put("/", h.ReplaceUserPermissions)
				u.With(need(rbac.UserPermissionManage)).Post("/{permission}/grant", h.GrantPermission)
				u.With(need(rbac.UserPermissionManage)).Post("/{permission}/revoke", h.RevokePermission)
				u.With(need(rbac.UserPermissionManage)).Delete("/{permission}", h.ClearPermission)
				u.With(h.gate.RequireAny(rbac.UserView, rbac.PermissionView)).Get("/{permission}/check", h.CheckPermission)
			})

			rb.Route("/role/{role}/permissions", func(ro chi.Router) {
				ro.With(need()).Get("/", h.RolePermissions)
				ro.With(need(rbac.RoleUpdate, rbac.UserPermissionManage)).Put("/", h.SetRolePermissions)
			})
		})

		private.Route("/users", func(u chi.Router) {
			u.With(need(rbac.UserList)).Get("/", h.ListUsers)
			u.With(need(rbac.UserCreate)).Post("/", h.CreateUser)
			u.With(need(rbac.UserView)).Get("/{id}", h.GetUser)
			u.With(need(rbac.UserUpdate)).Patch("/{id}", h.UpdateUser)
			u.With(need(rbac.UserDelete)).Delete("/{id}", h.DeleteUser)
		})

		private.Route("/patients", func(p chi.Router) {
			p.With(need(rbac.PatientView)).Get("/", h.ListPatients)
			p.With(need(rbac.PatientCreate)).Post("/", h.CreatePatient)
			p.With(need(rbac.PatientView)).Get("/by-health-unit/{healthUnitID}", h.ListPatientsByHealthUnit)
			p.With(need(rbac.PatientView)).Get("/{id}", h.GetPatient)
			p.With(need(rbac.PatientUpdate)).Patch("/{id}", h.UpdatePatient)
			p.With(need(rbac.PatientDelete)).Delete("/{id}", h.DeletePatient)
		})

		private.Route("/doctors", func(d chi.Router) {
			d.With(need(rbac.DoctorView)).Get("/", h.ListDoctors)
			d.With(need(rbac.DoctorCreate)).Post("/", h.CreateDoctor)
			d.With(need(rbac.DoctorView)).Get("/{id}", h.GetDoctor)
			d.With(need(rbac.DoctorUpdate)).Patch("/{id}", h.UpdateDoctor)
			d.With(need(rbac.DoctorDelete)).Delete("/{id}", h.DeleteDoctor)
		})

		private.Route("/cityhall", func(c chi.Router) {
			c.With(need(rbac.CityHallList)).Get("/", h.ListCityHalls)
			c.With(need(rbac.CityHallCreate)).Post("/", h.CreateCityHall)
			c.With(need(rbac.CityHallView)).Get("/{id}", h.GetCityHall)
			c.With(need(rbac.CityHallUpdate)).Put("/{id}", h.UpdateCityHall)
			c.With(need(rbac.CityHallDelete)).Delete("/{id}", h.DeleteCityHall)
		})

		private.Route("/healthunit", func(hu chi.Router) {
			hu.With(need(rbac.HealthUnitList)).Get("/", h.ListHealthUnits)
			hu.With(need(rbac.HealthUnitCreate)).Post("/", h.CreateHealthUnit)
			hu.With(need(rbac.HealthUnitView)).Get("/{id}", h.GetHealthUnit)
			hu.With(need(rbac.HealthUnitUpdate)).Put("/{id}", h.UpdateHealthUnit)
			hu.With(need(rbac.HealthUnitDelete)).Delete("/{id}", h.DeleteHealthUnit)
		})

		private.Route("/medical-records", func(mr chi.Router) {
			mr.With(need(rbac.MedicalRecordList)).Get("/", h.ListMedicalRecords)
			mr.With(need(rbac.MedicalRecordCreate)).Post("/", h.CreateMedicalRecord)
			mr.With(need(rbac.MedicalRecordView)).Get("/patient/{patientID}", h.GetPatientMedicalRecord)
			mr.With(need(rbac.MedicalRecordCreate)).Post("/patient/{patientID}", h.CreatePatientMedicalRecord)
			mr.With(need(rbac.MedicalRecordView)).Get("/{id}", h.GetMedicalRecord)
			mr.With(need(rbac.MedicalRecordUpdate)).Put("/{id}", h.UpdateMedicalRecord)
			mr.With(need(rbac.MedicalRecordDelete)).Delete("/{id}", h.DeleteMedicalRecord)
		})

		private.Route("/medical-schedules", func(ms chi.Router) {
			ms.With(need(rbac.MedicalScheduleView)).Get("/", h.ListSchedules)
			ms.With(need(rbac.MedicalScheduleView)).Get("/date-range", h.ListSchedulesByDateRange)
			ms.With(need(rbac.MedicalScheduleCreate)).Post("/", h.CreateSchedule)
			ms.With(need(rbac.MedicalScheduleView)).Get("/{id}", h.GetSchedule)
			ms.With(need(rbac.MedicalScheduleUpdate)).Patch("/{id}", h.UpdateSchedule)
			ms.With(need(rbac.MedicalScheduleDelete)).Delete("/{id}", h.DeleteSchedule)
		})
	})

	return r
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.db.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
