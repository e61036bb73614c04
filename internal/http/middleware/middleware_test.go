package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/agendasaude/api/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	h := CORS([]string{"https://painel.agendasaude.gov.br", "*.saude.pb.gov.br"})(okHandler())

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://painel.agendasaude.gov.br", true},
		{"https://cabaceiras.saude.pb.gov.br", true},
		{"https://saude.pb.gov.br", false},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		req.Header.Set("Origin", tc.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin") == tc.origin
		if got != tc.allowed {
			t.Fatalf("origin %s: expected allowed=%v", tc.origin, tc.allowed)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/patients", nil)
	req.Header.Set("Origin", "https://painel.agendasaude.gov.br")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight should answer 204, got %d", rec.Code)
	}
}

func TestCORSPreflightFromUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://painel.agendasaude.gov.br/", " *.Saude.PB.gov.br "})(okHandler())

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/medical-records", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://evil.example.com")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not receive CORS headers")
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
	}

	for _, origin := range []string{"https://painel.agendasaude.gov.br", "https://cabaceiras.saude.pb.gov.br"} {
		rec := preflight(origin)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", origin, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-Id, Retry-After" {
			t.Fatalf("%s: unexpected expose headers %q", origin, got)
		}
	}
}

func TestIPRateLimit(t *testing.T) {
	h := IPRateLimit(NewRateLimiter("public", 1, 2))(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of 2 then 429, got %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.8:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other clients keep their own bucket, got %d", rec.Code)
	}
}

func TestUserRateLimitKeysByTokenSubject(t *testing.T) {
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	h := UserRateLimit(NewRateLimiter("auth", 1, 1), tokens)(okHandler())

	issue := func() string {
		token, _, err := tokens.Issue(auth.Identity{UserID: uuid.New()})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		return token
	}
	call := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	first := issue()
	if code := call(first); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := call(first); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same subject, got %d", code)
	}
	if code := call(issue()); code != http.StatusOK {
		t.Fatalf("expected 200 for another subject, got %d", code)
	}
}

func TestUserRateLimitFallsBackToClientIP(t *testing.T) {
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	h := UserRateLimit(NewRateLimiter("auth", 1, 2), tokens)(okHandler())

	call := func(authorization, remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/patients", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// token ausente e token inválido dividem o mesmo balde do IP
	codes := []int{
		call("", "10.0.0.9:4000"),
		call("Bearer nao-e-um-jwt", "10.0.0.9:4001"),
		call("Basic dXNlcjpzZW5oYQ==", "10.0.0.9:4002"),
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of 2 then 429 for the same IP, got %v", codes)
	}
	if code := call("", "10.0.0.10:4000"); code != http.StatusOK {
		t.Fatalf("other clients keep their own bucket, got %d", code)
	}

	token, _, err := tokens.Issue(auth.Identity{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if code := call("Bearer "+token, "10.0.0.9:4003"); code != http.StatusOK {
		t.Fatalf("valid tokens are keyed by subject, got %d", code)
	}
}
