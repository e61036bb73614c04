package rbac

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/audit"
)

type memStore struct {
	subjects   map[uuid.UUID]Subject
	roles      map[Role][]Permission
	catalog    map[Permission]PermissionRecord
	writes     int
	roleWrites int
}

func newMemStore() *memStore {
	return &memStore{
		subjects: make(map[uuid.UUID]Subject),
		roles:    make(map[Role][]Permission),
		catalog:  make(map[Permission]PermissionRecord),
	}
}

func (s *memStore) addUser(role Role, overrides Overrides) uuid.UUID {
	id := uuid.New()
	if overrides == nil {
		overrides = Overrides{}
	}
	s.subjects[id] = Subject{ID: id, Role: role, Active: true, Overrides: overrides}
	return id
}

func (s *memStore) GetSubject(ctx context.Context, userID uuid.UUID) (Subject, error) {
	sub, ok := s.subjects[userID]
	if !ok {
		return Subject{}, ErrUserNotFound
	}
	sub.Overrides = sub.Overrides.Clone()
	return sub, nil
}

func (s *memStore) RolePermissionNames(ctx context.Context, role Role) ([]Permission, error) {
	return append([]Permission(nil), s.roles[role]...), nil
}

func (s *memStore) SetOverride(ctx context.Context, userID uuid.UUID, name Permission, granted bool) error {
	sub, ok := s.subjects[userID]
	if !ok {
		return ErrUserNotFound
	}
	s.writes++
	sub.Overrides[name] = granted
	s.subjects[userID] = sub
	return nil
}

func (s *memStore) ClearOverride(ctx context.Context, userID uuid.UUID, name Permission) error {
	sub, ok := s.subjects[userID]
	if !ok {
		return ErrUserNotFound
	}
	s.writes++
	delete(sub.Overrides, name)
	s.subjects[userID] = sub
	return nil
}

func (s *memStore) ReplaceOverrides(ctx context.Context, userID uuid.UUID, overrides Overrides) error {
	sub, ok := s.subjects[userID]
	if !ok {
		return ErrUserNotFound
	}
	s.writes++
	sub.Overrides = overrides.Clone()
	s.subjects[userID] = sub
	return nil
}

func (s *memStore) ReplaceRolePermissions(ctx context.Context, role Role, names []Permission) (int, error) {
	s.roleWrites++
	s.roles[role] = append([]Permission(nil), names...)
	return len(names), nil
}

func (s *memStore) UpsertPermissions(ctx context.Context, records []PermissionRecord) error {
	for _, r := range records {
		if existing, ok := s.catalog[r.Name]; ok {
			existing.Active = true
			s.catalog[r.Name] = existing
			continue
		}
		s.catalog[r.Name] = r
	}
	return nil
}

func (s *memStore) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	out := make([]PermissionRecord, 0, len(s.catalog))
	for _, r := range s.catalog {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ListActiveUsers(ctx context.Context) ([]UserSummary, error) {
	var out []UserSummary
	for _, sub := range s.subjects {
		if sub.Active {
			out = append(out, UserSummary{ID: sub.ID, Email: sub.Email, Role: sub.Role, Overrides: sub.Overrides.Clone()})
		}
	}
	return out, nil
}

type recordingPublisher struct {
	events []audit.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev audit.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func sorted(in []Permission) []Permission {
	out := append([]Permission(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestEffectivePermissionsOverridePrecedence(t *testing.T) {
	store := newMemStore()
	store.roles[RolePatient] = []Permission{PatientView}
	userID := store.addUser(RolePatient, Overrides{PatientView: false, AppointmentView: true})

	engine := NewEngine(store, &recordingPublisher{})
	got, err := engine.EffectivePermissions(context.Background(), userID)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if !reflect.DeepEqual(got, []Permission{AppointmentView}) {
		t.Fatalf("expected [appointment_view], got %v", got)
	}
}

func TestEffectivePermissionsOverlayKeepsUnmentionedDefaults(t *testing.T) {
	store := newMemStore()
	store.roles[RoleDoctor] = []Permission{PatientView, PatientList, MedicalRecordView}
	userID := store.addUser(RoleDoctor, Overrides{PatientList: false, DoctorView: true, PatientView: true})

	engine := NewEngine(store, nil)
	got, err := engine.EffectivePermissions(context.Background(), userID)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	want := []Permission{DoctorView, MedicalRecordView, PatientView}
	if !reflect.DeepEqual(sorted(got), want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEffectivePermissionsUnknownUserIsEmpty(t *testing.T) {
	engine := NewEngine(newMemStore(), nil)

	got, err := engine.EffectivePermissions(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %v", got)
	}

	ok, err := engine.HasPermission(context.Background(), uuid.New(), "patient_view")
	if err != nil || ok {
		t.Fatalf("expected false for unknown user, got %v (%v)", ok, err)
	}
}

func TestEffectivePermissionsInactiveUserIsEmpty(t *testing.T) {
	store := newMemStore()
	store.roles[RoleAdmin] = []Permission{PatientView}
	userID := store.addUser(RoleAdmin, Overrides{UserView: true})
	sub := store.subjects[userID]
	sub.Active = false
	store.subjects[userID] = sub

	engine := NewEngine(store, nil)
	got, err := engine.EffectivePermissions(context.Background(), userID)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set for inactive user, got %v", got)
	}
}

func TestHasAllPermissionsAndSemantics(t *testing.T) {
	store := newMemStore()
	store.roles[RoleDoctor] = []Permission{PatientView, PatientList}
	userID := store.addUser(RoleDoctor, nil)
	engine := NewEngine(store, nil)
	ctx := context.Background()

	cases := []struct {
		required []Permission
		want     bool
	}{
		{required: []Permission{PatientView, PatientList, PatientCreate}, want: false},
		{required: []Permission{PatientView, PatientList}, want: true},
		{required: nil, want: true},
		{required: []Permission{}, want: true},
	}

	for _, tc := range cases {
		got, err := engine.HasAllPermissions(ctx, userID, tc.required)
		if err != nil {
			t.Fatalf("has all %v: %v", tc.required, err)
		}
		if got != tc.want {
			t.Fatalf("has all %v: expected %v, got %v", tc.required, tc.want, got)
		}
	}
}

func TestHasPermissionTrimsWhitespaceOnly(t *testing.T) {
	store := newMemStore()
	store.roles[RoleDoctor] = []Permission{PatientView}
	userID := store.addUser(RoleDoctor, nil)
	engine := NewEngine(store, nil)
	ctx := context.Background()

	ok, err := engine.HasPermission(ctx, userID, "  patient_view\t")
	if err != nil || !ok {
		t.Fatalf("expected trimmed match, got %v (%v)", ok, err)
	}

	for _, variant := range []string{"PATIENT_VIEW", "patient-view", "patient:view"} {
		ok, err := engine.HasPermission(ctx, userID, variant)
		if err != nil || ok {
			t.Fatalf("expected %q not to match, got %v (%v)", variant, ok, err)
		}
	}
}

func TestGrantRevokeIdempotent(t *testing.T) {
	store := newMemStore()
	store.roles[RolePatient] = []Permission{PatientView}
	userID := store.addUser(RolePatient, nil)
	pub := &recordingPublisher{}
	engine := NewEngine(store, pub)
	ctx := context.Background()

	if err := engine.Grant(ctx, userID, "appointment_view"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	once, _ := engine.EffectivePermissions(ctx, userID)
	if err := engine.Grant(ctx, userID, "appointment_view"); err != nil {
		t.Fatalf("grant again: %v", err)
	}
	twice, _ := engine.EffectivePermissions(ctx, userID)
	if !reflect.DeepEqual(sorted(once), sorted(twice)) {
		t.Fatalf("grant not idempotent: %v vs %v", once, twice)
	}

	if err := engine.Revoke(ctx, userID, "patient_view"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	once, _ = engine.EffectivePermissions(ctx, userID)
	if err := engine.Revoke(ctx, userID, "patient_view"); err != nil {
		t.Fatalf("revoke again: %v", err)
	}
	twice, _ = engine.EffectivePermissions(ctx, userID)
	if !reflect.DeepEqual(sorted(once), sorted(twice)) {
		t.Fatalf("revoke not idempotent: %v vs %v", once, twice)
	}
	if !reflect.DeepEqual(twice, []Permission{AppointmentView}) {
		t.Fatalf("expected [appointment_view], got %v", twice)
	}

	if len(pub.events) != 4 || pub.events[0].Action != audit.ActionGrant || pub.events[2].Action != audit.ActionRevoke {
		t.Fatalf("unexpected audit trail %+v", pub.events)
	}
}

func TestGrantUnknownPermissionPerformsNoWrite(t *testing.T) {
	store := newMemStore()
	store.roles[RolePatient] = []Permission{PatientView}
	userID := store.addUser(RolePatient, nil)
	engine := NewEngine(store, nil)
	ctx := context.Background()

	before, _ := engine.EffectivePermissions(ctx, userID)

	err := engine.Grant(ctx, userID, "not_a_real_permission")
	if !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
	if store.writes != 0 {
		t.Fatalf("expected no write, got %d", store.writes)
	}

	after, _ := engine.EffectivePermissions(ctx, userID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("effective set changed: %v -> %v", before, after)
	}

	if err := engine.Revoke(ctx, userID, "Patient View"); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission for malformed name, got %v", err)
	}
}

func TestGrantUnknownUser(t *testing.T) {
	engine := NewEngine(newMemStore(), nil)
	err := engine.Grant(context.Background(), uuid.New(), "patient_view")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestReplaceUserOverridesRoundTrip(t *testing.T) {
	store := newMemStore()
	userID := store.addUser(RoleDoctor, Overrides{PatientView: false, DoctorView: true})
	engine := NewEngine(store, nil)
	ctx := context.Background()

	input := map[string]bool{"patient_list": true, "medical_record_view": false}
	if _, err := engine.ReplaceUserOverrides(ctx, userID, input); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := engine.UserOverrides(ctx, userID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(got.Raw(), input) {
		t.Fatalf("expected %v, got %v", input, got.Raw())
	}
}

func TestReplaceUserOverridesValidatesBeforeWrite(t *testing.T) {
	store := newMemStore()
	userID := store.addUser(RoleDoctor, Overrides{DoctorView: true})
	engine := NewEngine(store, nil)
	ctx := context.Background()

	_, err := engine.ReplaceUserOverrides(ctx, userID, map[string]bool{
		"patient_list":     true,
		"ghost_permission": true,
	})
	if !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
	if store.writes != 0 {
		t.Fatalf("expected no write, got %d", store.writes)
	}

	_, err = engine.ReplaceUserOverrides(ctx, userID, map[string]bool{"": true})
	if !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}

	got, _ := engine.UserOverrides(ctx, userID)
	if !reflect.DeepEqual(got, Overrides{DoctorView: true}) {
		t.Fatalf("overrides changed after failed replace: %v", got)
	}
}

func TestClearOverrideRevertsToRoleDefault(t *testing.T) {
	store := newMemStore()
	store.roles[RolePatient] = []Permission{PatientView}
	userID := store.addUser(RolePatient, Overrides{PatientView: false})
	engine := NewEngine(store, nil)
	ctx := context.Background()

	if err := engine.ClearOverride(ctx, userID, "patient_view"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ := engine.EffectivePermissions(ctx, userID)
	if !reflect.DeepEqual(got, []Permission{PatientView}) {
		t.Fatalf("expected role default restored, got %v", got)
	}
	overrides, _ := engine.UserOverrides(ctx, userID)
	if _, ok := overrides[PatientView]; ok {
		t.Fatal("expected key removed from override map")
	}
}

func TestSetRoleDefaultsSkipsUnknownAndDeduplicates(t *testing.T) {
	store := newMemStore()
	store.roles[RoleDoctor] = []Permission{UserDelete}
	engine := NewEngine(store, nil)

	applied, err := engine.SetRoleDefaults(context.Background(), RoleDoctor, []string{
		"patient_view", "made_up_permission", "patient_view", " patient_list ",
	})
	if err != nil {
		t.Fatalf("set role defaults: %v", err)
	}
	want := []Permission{PatientView, PatientList}
	if !reflect.DeepEqual(applied, want) || !reflect.DeepEqual(store.roles[RoleDoctor], want) {
		t.Fatalf("expected %v, got applied=%v stored=%v", want, applied, store.roles[RoleDoctor])
	}

	if _, err := engine.SetRoleDefaults(context.Background(), Role("NURSE"), nil); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestFullSyncIsIdempotent(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	engine := NewEngine(store, pub)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := engine.FullSync(ctx); err != nil {
			t.Fatalf("full sync #%d: %v", i, err)
		}
	}

	perms, _ := engine.ListPermissions(ctx)
	if len(perms) != len(AllPermissions()) {
		t.Fatalf("expected %d permissions, got %d", len(AllPermissions()), len(perms))
	}
	if !reflect.DeepEqual(sorted(store.roles[RoleMaster]), AllPermissions()) {
		t.Fatal("expected MASTER to hold the full catalog")
	}
	if !reflect.DeepEqual(store.roles[RolePatient], []Permission{PatientView}) {
		t.Fatalf("unexpected PATIENT defaults %v", store.roles[RolePatient])
	}
	if store.roleWrites != 2*len(AllRoles()) {
		t.Fatalf("expected %d role writes, got %d", 2*len(AllRoles()), store.roleWrites)
	}
}

func TestAuthorizeReturnsMissingPermissions(t *testing.T) {
	store := newMemStore()
	store.roles[RoleDoctor] = []Permission{PatientView}
	userID := store.addUser(RoleDoctor, nil)
	engine := NewEngine(store, nil)
	ctx := context.Background()

	dec, err := engine.Authorize(ctx, userID, []Permission{PatientView, PatientCreate})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if dec.Allowed || !reflect.DeepEqual(dec.Missing, []Permission{PatientCreate}) {
		t.Fatalf("unexpected decision %+v", dec)
	}

	dec, err = engine.Authorize(ctx, userID, nil)
	if err != nil || !dec.Allowed {
		t.Fatalf("expected empty requirement to pass, got %+v (%v)", dec, err)
	}

	if _, err := engine.Authorize(ctx, uuid.New(), nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListUsersWithPermissions(t *testing.T) {
	store := newMemStore()
	store.roles[RolePatient] = []Permission{PatientView}
	userID := store.addUser(RolePatient, Overrides{ProfileView: true})
	engine := NewEngine(store, nil)

	users, err := engine.ListUsersWithPermissions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || users[0].ID != userID {
		t.Fatalf("unexpected users %+v", users)
	}
	if !reflect.DeepEqual(users[0].Permissions, []Permission{PatientView, ProfileView}) {
		t.Fatalf("unexpected permissions %v", users[0].Permissions)
	}
	if !users[0].SpecificPermissions["profile_view"] {
		t.Fatalf("expected specific permissions to be exposed, got %v", users[0].SpecificPermissions)
	}
}
