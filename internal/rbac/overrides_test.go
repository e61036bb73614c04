package rbac

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides(map[string]bool{"patient_view": false, " doctor_view ": true})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Overrides{PatientView: false, DoctorView: true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := ParseOverrides(map[string]bool{"Patient-View": true}); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
	if _, err := ParseOverrides(map[string]bool{"patient_teleport": true}); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestDecodeOverridesDropsOrphans(t *testing.T) {
	got, err := DecodeOverrides([]byte(`{"patient_view":true,"legacy_permission":true,"doctor_view":"yes","user_list":false}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Overrides{PatientView: true, UserList: false}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	for _, empty := range [][]byte{nil, []byte("null")} {
		got, err := DecodeOverrides(empty)
		if err != nil || len(got) != 0 {
			t.Fatalf("expected empty overrides for %q, got %v (%v)", empty, got, err)
		}
	}

	if _, err := DecodeOverrides([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object column")
	}
}

func TestOverridesEncodeRoundTrip(t *testing.T) {
	in := Overrides{PatientView: false, AppointmentView: true}
	data, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeOverrides(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("expected %v, got %v", in, out)
	}
}
