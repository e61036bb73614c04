// Package metrics registra as métricas Prometheus da API.
// As variáveis são registradas no registro padrão na inicialização do pacote.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agendasaude"

// GateDecisionsTotal conta decisões do gate de autorização.
// Labels:
//   - result: "admitted" ou "denied"
//   - reason: "ok", "token_missing", "token_invalid", "user_not_found", "inactive", "insufficient_permissions", "error"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total de decisões do gate de autorização.",
	},
	[]string{"result", "reason"},
)

// LoginAttemptsTotal conta tentativas de login.
// Label:
//   - outcome: "success", "invalid_credentials", "throttled", "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total de tentativas de login por resultado.",
	},
	[]string{"outcome"},
)

// RBACMutationsTotal conta mutações de permissões por ação.
var RBACMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rbac_mutations_total",
		Help:      "Total de alterações de permissões (grant, revoke, replace, role, sync).",
	},
	[]string{"action"},
)

// RateLimitedTotal conta requisições recusadas pelo limitador.
// Label:
//   - limiter: "public" ou "auth"
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total de requisições recusadas por excesso de taxa.",
	},
	[]string{"limiter"},
)

// HTTPRequestDuration mede a duração das requisições por rota.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duração das requisições HTTP.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// Handler expõe o registro padrão em /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
