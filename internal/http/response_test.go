package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponsesAreNotCacheable(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]string{"blood_type": "O+"})
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["error"]) != "null" {
		t.Fatalf("success envelope must carry error: null, got %s", raw["error"])
	}

	rec = httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "CONFLICT", "paciente já possui prontuário", nil)
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusConflict || env.Data != nil || env.Error == nil || env.Error.Code != "CONFLICT" {
		t.Fatalf("unexpected error envelope %d %+v", rec.Code, env)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("error responses must not be cached either")
	}

	rec = httptest.NewRecorder()
	WriteNoContent(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
	}
}
