// Package metrics defines and registers all custom Prometheus metrics for the
// cassauth service. It is the single source of truth for metric names, labels,
// and help strings. Metrics register with the default registry at package
// init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cassauth"

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsCreatedTotal counts sessions created through the conditional-insert
// key-generation loop.
var SessionsCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions created.",
	},
)

// SessionKeyCollisionsTotal counts key-generation retries caused by a
// conditional-insert conflict. With 160-bit keys this should stay at zero;
// a non-zero value means the key generator is broken.
var SessionKeyCollisionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_key_collisions_total",
		Help:      "Total number of session key collisions during create.",
	},
)

// SessionLoadsTotal counts session loads by outcome.
// Label:
//   - result: "hit", "miss", "expired", or "corrupt"
var SessionLoadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_loads_total",
		Help:      "Total number of session loads, labelled by outcome.",
	},
	[]string{"result"},
)

// SessionCacheTotal counts read-through cache decisions.
// Label:
//   - result: "hit", "miss", or "error"
var SessionCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_cache_total",
		Help:      "Total number of session cache lookups, labelled by result.",
	},
	[]string{"result"},
)

// SweepDeletedTotal counts rows removed by the expired-session sweeper.
var SweepDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_deleted_total",
		Help:      "Total number of expired sessions removed by the sweeper.",
	},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthAttemptsTotal counts authentication attempts by outcome.
// Label:
//   - result: "ok", "bad_password", "unknown_user", or "inactive"
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of authentication attempts, labelled by outcome.",
	},
	[]string{"result"},
)

// UsersCreatedTotal counts successful registrations.
var UsersCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_created_total",
		Help:      "Total number of credential records created.",
	},
)

// ── Storage metrics ───────────────────────────────────────────────────────────

// StoreOpDuration measures a single storage round-trip.
// Label:
//   - op: repository operation name (e.g. "session_insert", "user_find")
var StoreOpDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_op_duration_seconds",
		Help:      "Duration of individual Cassandra operations.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"op"},
)
