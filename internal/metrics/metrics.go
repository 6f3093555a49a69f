package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts join-request submissions by result
	// (ok, invalid, failed, partial).
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Name:      "join_submissions_total",
		Help:      "Join-request submissions by result.",
	}, []string{"result"})

	// RemoteAttempts counts calls to the image host and the document store.
	RemoteAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Name:      "remote_attempts_total",
		Help:      "Remote call attempts by operation and outcome.",
	}, []string{"op", "outcome"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Name:      "join_decisions_total",
		Help:      "Teacher decisions on join requests.",
	}, []string{"status"})

	// AuditFindings counts join requests the worker found without a fee record.
	AuditFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Name:      "audit_findings_total",
		Help:      "Submission audit findings by kind.",
	}, []string{"kind"})
)
