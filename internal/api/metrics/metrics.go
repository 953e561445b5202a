// Package metrics defines all custom Prometheus metrics for the IAM API. It
// is the single source of truth for metric names, labels, and help strings.
// Metrics register themselves with the default registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iam"

// LoginsTotal counts login attempts by outcome.
// Label:
//   - result: "success", "invalid_credentials", "locked", "disabled", "not_found", "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"result"},
)

// LockoutsTotal counts accounts locked after repeated failed logins.
var LockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of account lockouts triggered.",
	},
)

// RotationsTotal counts refresh-token rotations by outcome.
// Label:
//   - result: "success", "invalid", "expired", "revoked", "error"
var RotationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rotations_total",
		Help:      "Total number of refresh token rotations, by outcome.",
	},
	[]string{"result"},
)

// ReuseDetectedTotal counts rotation attempts with an already-consumed
// refresh token. A spike here means replayed tokens.
var ReuseDetectedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_reuse_detected_total",
		Help:      "Total number of rotation attempts using an already-consumed refresh token.",
	},
)

// LogoutsTotal counts completed logouts.
var LogoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logouts_total",
		Help:      "Total number of completed logouts.",
	},
)

// SweepDurationSeconds tracks how long background token sweeps take.
// Label:
//   - kind: "user" or "blacklist"
var SweepDurationSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of background token sweeps, by kind.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// BlacklistChecksTotal counts authorization-boundary blacklist lookups.
// Label:
//   - result: "hit" (token revoked, request rejected) or "miss"
var BlacklistChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blacklist_checks_total",
		Help:      "Total number of blacklist lookups on the authorization path, by result.",
	},
	[]string{"result"},
)
