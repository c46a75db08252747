// CLAUDE:SUMMARY Prometheus collectors for engine outcomes and HTTP traffic; a nil *Metrics is a valid no-op
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry prometheus.Gatherer

	argumentsSubmitted prometheus.Counter
	votesCast          *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	debatesResolved    *prometheus.CounterVec
	awardFailures      prometheus.Counter
	codesIssued        prometheus.Counter
	codeChecks         *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

// New registers all collectors on reg. Passing a *prometheus.Registry lets
// Handler serve exactly those collectors.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.argumentsSubmitted = factory.NewCounter(prometheus.CounterOpts{
		Name: "debatehub_arguments_submitted_total",
		Help: "arguments appended to debates",
	})
	m.votesCast = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "debatehub_votes_cast_total",
		Help: "votes recorded, by side",
	}, []string{"side"})
	m.rejections = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "debatehub_rejections_total",
		Help: "engine operations rejected, by operation and kind",
	}, []string{"operation", "kind"})
	m.debatesResolved = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "debatehub_debates_resolved_total",
		Help: "debates completed, by outcome (winner, tie, unassigned)",
	}, []string{"outcome"})
	m.awardFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "debatehub_award_failures_total",
		Help: "credibility awards that failed after the primary write succeeded",
	})
	m.codesIssued = factory.NewCounter(prometheus.CounterOpts{
		Name: "debatehub_verification_codes_issued_total",
		Help: "verification codes issued",
	})
	m.codeChecks = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "debatehub_verification_checks_total",
		Help: "verification code checks, by result",
	}, []string{"result"})
	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "debatehub_http_requests_total",
		Help: "HTTP requests served, by method and status",
	}, []string{"method", "status"})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ArgumentSubmitted() {
	if m != nil {
		m.argumentsSubmitted.Inc()
	}
}

func (m *Metrics) VoteCast(side string) {
	if m != nil {
		m.votesCast.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) Rejected(operation, kind string) {
	if m != nil {
		m.rejections.WithLabelValues(operation, kind).Inc()
	}
}

func (m *Metrics) DebateResolved(outcome string) {
	if m != nil {
		m.debatesResolved.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AwardFailed() {
	if m != nil {
		m.awardFailures.Inc()
	}
}

func (m *Metrics) CodeIssued() {
	if m != nil {
		m.codesIssued.Inc()
	}
}

func (m *Metrics) CodeChecked(result string) {
	if m != nil {
		m.codeChecks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) HTTPRequest(method string, status int) {
	if m != nil {
		m.httpRequests.WithLabelValues(method, http.StatusText(status)).Inc()
	}
}
