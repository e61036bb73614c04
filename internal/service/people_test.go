package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/rbac"
	"github.com/agendasaude/api/internal/repo"
	"github.com/agendasaude/api/internal/scope"
)

type peopleFixture struct {
	store     *stubUserStore
	territory *stubTerritory
	validator *scope.Validator
	cityA     uuid.UUID
	cityB     uuid.UUID
	unitA1    uuid.UUID
	unitA2    uuid.UUID
	unitB1    uuid.UUID
}

func newPeopleFixture() *peopleFixture {
	tr := newStubTerritory()
	f := &peopleFixture{store: newStubUserStore(), territory: tr}
	f.cityA = tr.addCity()
	f.cityB = tr.addCity()
	f.unitA1 = tr.addUnit(f.cityA)
	f.unitA2 = tr.addUnit(f.cityA)
	f.unitB1 = tr.addUnit(f.cityB)
	f.validator = scope.NewValidator(tr)
	return f
}

func (f *peopleFixture) add(u repo.UserWithProfile) repo.UserWithProfile {
	f.store.users[u.ID] = u
	return u
}

func actorOf(u repo.UserWithProfile) scope.Actor {
	return scope.Actor{UserID: u.ID, Role: u.Role, CityID: u.CityID, HealthUnitID: u.HealthUnitID}
}

func TestPatientListTerritorialIsolation(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	unitAdmin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), idPtr(f.unitA1), "AdminA1"))
	master := f.add(person(rbac.RoleMaster, nil, nil, "Master"))
	orphan := f.add(person(rbac.RoleAdmin, nil, nil, "SemCidade"))
	f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA1), "P1"))
	f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA2), "P2"))
	f.add(person(rbac.RolePatient, idPtr(f.cityB), idPtr(f.unitB1), "P3"))

	svc := NewPatientService(f.store, f.territory, f.validator)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor scope.Actor
		want  int
	}{
		{"master sees all", actorOf(master), 3},
		{"city admin sees city", actorOf(admin), 2},
		{"unit admin sees unit", actorOf(unitAdmin), 1},
		{"admin without city sees nothing", actorOf(orphan), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := f.store.listCalls
			got, err := svc.List(ctx, tc.actor)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d patients, got %d", tc.want, len(got))
			}
			if tc.want == 0 && f.store.listCalls != calls {
				t.Fatalf("denied scope should not query the store")
			}
		})
	}
}

func TestPatientGetOutsideScope(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	other := f.add(person(rbac.RolePatient, idPtr(f.cityB), idPtr(f.unitB1), "P3"))
	doctor := f.add(person(rbac.RoleDoctor, idPtr(f.cityA), idPtr(f.unitA1), "Dr"))

	svc := NewPatientService(f.store, f.territory, f.validator)
	if _, err := svc.Get(context.Background(), actorOf(admin), other.ID); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Get(context.Background(), actorOf(admin), doctor.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected non-patient to be not found, got %v", err)
	}
}

func TestPatientCreateValidatesTerritory(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	svc := NewPatientService(f.store, f.territory, f.validator)
	ctx := context.Background()
	name := "Joana"

	in := CreatePatientInput{Email: "joana@x.com", Password: "123456", CPF: "98765432100", Profile: ProfileInput{Name: &name}}

	in.CityID, in.HealthUnitID = f.cityB, f.unitB1
	if _, err := svc.Create(ctx, actorOf(admin), in); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other city, got %v", err)
	}

	in.CityID, in.HealthUnitID = f.cityA, f.unitB1
	if _, err := svc.Create(ctx, actorOf(admin), in); !errors.Is(err, scope.ErrHealthUnitNotFound) {
		t.Fatalf("expected ErrHealthUnitNotFound for mismatched unit, got %v", err)
	}

	in.CityID, in.HealthUnitID = uuid.New(), f.unitA1
	if _, err := svc.Create(ctx, actorOf(admin), in); !errors.Is(err, scope.ErrHealthUnitNotFound) {
		t.Fatalf("expected mismatch with unknown city, got %v", err)
	}
	if f.store.created != 0 {
		t.Fatalf("no write expected before validation passes")
	}

	in.CityID, in.HealthUnitID = f.cityA, f.unitA2
	created, err := svc.Create(ctx, actorOf(admin), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Role != rbac.RolePatient || created.Name == nil || *created.Name != "Joana" {
		t.Fatalf("unexpected patient: %+v", created)
	}
	if created.HealthUnitID == nil || *created.HealthUnitID != f.unitA2 {
		t.Fatalf("expected unit assigned")
	}
}

func TestPatientCreateRejectsDuplicateIdentity(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	existing := f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA1), "P1"))
	svc := NewPatientService(f.store, f.territory, f.validator)

	_, err := svc.Create(context.Background(), actorOf(admin), CreatePatientInput{
		Email: "novo@x.com", Password: "123456", CPF: existing.CPF, CityID: f.cityA, HealthUnitID: f.unitA1,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPatientDeleteIsSoft(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	p := f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA1), "P1"))
	svc := NewPatientService(f.store, f.territory, f.validator)
	ctx := context.Background()

	if err := svc.Delete(ctx, actorOf(admin), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if stored, ok := f.store.users[p.ID]; !ok || stored.Active {
		t.Fatalf("expected patient kept and deactivated")
	}
	if _, err := svc.Get(ctx, actorOf(admin), p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("inactive patient should be not found, got %v", err)
	}
}

func TestPatientListByHealthUnit(t *testing.T) {
	f := newPeopleFixture()
	unitAdmin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), idPtr(f.unitA1), "AdminA1"))
	f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA1), "P1"))
	f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA2), "P2"))
	svc := NewPatientService(f.store, f.territory, f.validator)
	ctx := context.Background()

	got, err := svc.ListByHealthUnit(ctx, actorOf(unitAdmin), f.unitA1)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one patient, got %d err=%v", len(got), err)
	}
	if _, err := svc.ListByHealthUnit(ctx, actorOf(unitAdmin), f.unitA2); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for sibling unit, got %v", err)
	}
	if _, err := svc.ListByHealthUnit(ctx, actorOf(unitAdmin), uuid.New()); !errors.Is(err, scope.ErrHealthUnitNotFound) {
		t.Fatalf("expected ErrHealthUnitNotFound, got %v", err)
	}
}

func TestPatientUpdateRelocation(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	p := f.add(person(rbac.RolePatient, idPtr(f.cityA), idPtr(f.unitA1), "P1"))
	svc := NewPatientService(f.store, f.territory, f.validator)
	ctx := context.Background()

	moved, err := svc.Update(ctx, actorOf(admin), p.ID, UpdatePatientInput{HealthUnitID: idPtr(f.unitA2)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if *moved.HealthUnitID != f.unitA2 || *moved.CityID != f.cityA {
		t.Fatalf("expected move within city, got %+v", moved)
	}
	if _, err := svc.Update(ctx, actorOf(admin), p.ID, UpdatePatientInput{HealthUnitID: idPtr(f.unitB1)}); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("expected ErrForbidden moving to other city, got %v", err)
	}

	renamed, err := svc.Update(ctx, actorOf(admin), p.ID, UpdatePatientInput{Profile: ProfileInput{Name: strPtr("Paula")}})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if *renamed.HealthUnitID != f.unitA2 || *renamed.Name != "Paula" {
		t.Fatalf("expected territory kept and name changed, got %+v", renamed)
	}
}

func TestDoctorScopeAndDeactivate(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	svc := NewDoctorService(f.store, f.validator)
	ctx := context.Background()

	created, err := svc.Create(ctx, actorOf(admin), CreateDoctorInput{
		Email: "dr@x.com", Password: "123456", CPF: "55566677788",
		Profile: ProfileInput{Name: strPtr("Dra. Ana")},
		CRM:     CRMInput{Number: " 12345 ", UF: "sp", Specialty: "Clínica"},
		CityID:  f.cityA, HealthUnitID: f.unitA1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Doctor == nil || created.Doctor.CRMUF != "SP" || created.Doctor.CRMNumber != "12345" {
		t.Fatalf("unexpected doctor profile: %+v", created.Doctor)
	}

	if err := svc.Delete(ctx, actorOf(admin), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err := svc.List(ctx, actorOf(admin))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Active {
		t.Fatalf("expected inactive doctor still listed, got %+v", list)
	}

	peer := f.add(person(rbac.RoleDoctor, idPtr(f.cityA), idPtr(f.unitA2), "Peer"))
	if _, err := svc.Get(ctx, actorOf(peer), created.ID); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("doctor of another unit should be forbidden, got %v", err)
	}
}

func TestDoctorCreateRequiresName(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	svc := NewDoctorService(f.store, f.validator)

	for _, name := range []*string{nil, strPtr("  ")} {
		_, err := svc.Create(context.Background(), actorOf(admin), CreateDoctorInput{
			Email: "sem.nome@x.com", Password: "123456", CPF: "55566677788",
			Profile: ProfileInput{Name: name},
			CRM:     CRMInput{Number: "12345", UF: "SP", Specialty: "Clínica"},
			CityID:  f.cityA, HealthUnitID: f.unitA1,
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for missing name, got %v", err)
		}
	}
	if f.store.created != 0 {
		t.Fatalf("expected no write, got %d creates", f.store.created)
	}
}

func TestUserCreateRoleRules(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	master := f.add(person(rbac.RoleMaster, nil, nil, "Master"))
	svc := NewUserService(f.store, f.validator)
	ctx := context.Background()

	base := CreateUserInput{Email: "n@x.com", Password: "123456", CPF: "11122233344", Name: "Novo"}

	in := base
	in.Role = rbac.RoleMaster
	if _, err := svc.Create(ctx, actorOf(admin), in); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("admin creating MASTER should be forbidden, got %v", err)
	}

	in.Role = rbac.RoleAdmin
	if _, err := svc.Create(ctx, actorOf(master), in); !errors.Is(err, ErrValidation) {
		t.Fatalf("ADMIN without city should fail validation, got %v", err)
	}

	in.Role = "NURSE"
	if _, err := svc.Create(ctx, actorOf(master), in); !errors.Is(err, rbac.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}

	in.Role = rbac.RoleAdmin
	in.HealthUnitID = idPtr(f.unitB1)
	created, err := svc.Create(ctx, actorOf(master), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CityID == nil || *created.CityID != f.cityB {
		t.Fatalf("expected city derived from unit, got %v", created.CityID)
	}

	in = base
	in.Email, in.CPF = "m@x.com", "99988877766"
	in.Role = rbac.RoleMaster
	if _, err := svc.Create(ctx, actorOf(master), in); err != nil {
		t.Fatalf("master creating MASTER: %v", err)
	}
}

func TestUserPasswordTooShort(t *testing.T) {
	f := newPeopleFixture()
	master := f.add(person(rbac.RoleMaster, nil, nil, "Master"))
	svc := NewUserService(f.store, f.validator)
	_, err := svc.Create(context.Background(), actorOf(master), CreateUserInput{
		Email: "p@x.com", Password: "123", CPF: "12312312312", Role: rbac.RolePatient,
		CityID: idPtr(f.cityA), HealthUnitID: idPtr(f.unitA1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUserDelete(t *testing.T) {
	f := newPeopleFixture()
	admin := f.add(person(rbac.RoleAdmin, idPtr(f.cityA), nil, "AdminA"))
	inCity := f.add(person(rbac.RoleDoctor, idPtr(f.cityA), idPtr(f.unitA1), "Dr"))
	outside := f.add(person(rbac.RoleDoctor, idPtr(f.cityB), idPtr(f.unitB1), "DrB"))
	svc := NewUserService(f.store, f.validator)
	ctx := context.Background()

	if err := svc.Delete(ctx, actorOf(admin), admin.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("self delete should fail, got %v", err)
	}
	if err := svc.Delete(ctx, actorOf(admin), outside.ID); !errors.Is(err, scope.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, actorOf(admin), inCity.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.store.users[inCity.ID]; ok {
		t.Fatalf("expected hard delete")
	}
}

func TestUserUpdateEmailConflict(t *testing.T) {
	f := newPeopleFixture()
	master := f.add(person(rbac.RoleMaster, nil, nil, "Master"))
	a := f.add(person(rbac.RoleDoctor, idPtr(f.cityA), idPtr(f.unitA1), "A"))
	b := f.add(person(rbac.RoleDoctor, idPtr(f.cityA), idPtr(f.unitA1), "B"))
	svc := NewUserService(f.store, f.validator)

	if _, err := svc.Update(context.Background(), actorOf(master), a.ID, UpdateUserInput{Email: strPtr(b.Email)}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.Update(context.Background(), actorOf(master), a.ID, UpdateUserInput{Email: strPtr(a.Email)}); err != nil {
		t.Fatalf("keeping own e-mail should pass, got %v", err)
	}
}
