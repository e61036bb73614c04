package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agendasaude/api/internal/auth"
	"github.com/agendasaude/api/internal/metrics"
)

const sweepInterval = time.Minute

// RateLimiter mantém um token bucket por chave (IP ou usuário).
// Chaves sem uso por maxAge são descartadas na varredura periódica.
type RateLimiter struct {
	name      string
	limit     rate.Limit
	burst     int
	maxAge    time.Duration
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter cria o limitador; name identifica o limitador nas métricas.
func NewRateLimiter(name string, reqPerSec float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		name:    name,
		limit:   rate.Limit(reqPerSec),
		burst:   burst,
		maxAge:  10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// allow consome um token da chave e devolve a espera sugerida quando recusa.
func (r *RateLimiter) allow(key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > sweepInterval {
		for k, b := range r.buckets {
			if now.Sub(b.lastSeen) > r.maxAge {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	return false, time.Duration(float64(time.Second) / math.Max(float64(r.limit), 0.001))
}

// LimitByKey aplica o limite pela chave extraída; sem chave a requisição segue.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		if allowed, wait := r.allow(key); !allowed {
			metrics.RateLimitedTotal.WithLabelValues(r.name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "limite de requisições excedido")
			return
		}

		next.ServeHTTP(w, req)
	})
}

// IPRateLimit utiliza o IP do cliente como chave.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return realIPFromRequest(r), true
		})
	}
}

// UserRateLimit utiliza o subject do bearer token como chave.
// Sem token válido a chave passa a ser o IP, antes do Gate recusar a requisição.
func UserRateLimit(limiter *RateLimiter, tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			if subject := GetSubject(r.Context()); subject != "" {
				return "user:" + subject, true
			}
			if raw, err := auth.ParseBearer(r.Header.Get("Authorization")); err == nil {
				if claims, err := tokens.Verify(raw); err == nil {
					return "user:" + claims.Subject, true
				}
			}
			return "ip:" + realIPFromRequest(r), true
		})
	}
}

// realIPFromRequest lê RemoteAddr, já reescrito por chimiddleware.RealIP quando há proxy.
func realIPFromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
