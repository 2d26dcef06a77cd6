// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics contains the Prometheus collectors of kube-ldap.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/upstreamldap"
)

const namespace = "kube_ldap"

// Token verification results.
const (
	VerificationValid   = "valid"
	VerificationExpired = "expired"
	VerificationInvalid = "invalid"
)

// Metrics holds the collectors, registered with a private registry.  A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	authenticationsTotal   *prometheus.CounterVec
	authenticationDuration *prometheus.HistogramVec
	tokensIssuedTotal      prometheus.Counter
	tokenVerificationTotal *prometheus.CounterVec
	poolCheckoutsTotal     *prometheus.CounterVec
	poolWaitDuration       prometheus.Histogram
	poolDiscardsTotal      *prometheus.CounterVec
}

var _ upstreamldap.PoolObserver = &Metrics{}

// New creates the collectors along with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.authenticationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Total number of username and password authentications by outcome",
		},
		[]string{"outcome"},
	)

	m.authenticationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authentication_duration_seconds",
			Help:      "Duration of username and password authentications in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	m.tokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of issued tokens",
		},
	)

	m.tokenVerificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Total number of token verifications by result",
		},
		[]string{"result"},
	)

	m.poolCheckoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ldap_pool",
			Name:      "checkouts_total",
			Help:      "Total number of LDAP connection checkouts, by whether an idle connection was reused",
		},
		[]string{"reused"},
	)

	m.poolWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ldap_pool",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for an LDAP connection in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
	)

	m.poolDiscardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ldap_pool",
			Name:      "discards_total",
			Help:      "Total number of closed LDAP connections by reason",
		},
		[]string{"reason"},
	)

	m.registry.MustRegister(
		m.authenticationsTotal,
		m.authenticationDuration,
		m.tokensIssuedTotal,
		m.tokenVerificationTotal,
		m.poolCheckoutsTotal,
		m.poolWaitDuration,
		m.poolDiscardsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.initVecMetrics()

	return m
}

// initVecMetrics makes the common label combinations show up before they are first used.
func (m *Metrics) initVecMetrics() {
	for _, outcome := range []directory.Outcome{directory.OutcomeSuccess, directory.OutcomeRejected, directory.OutcomeServerError} {
		m.authenticationsTotal.WithLabelValues(outcomeLabel(outcome))
	}
	for _, result := range []string{VerificationValid, VerificationExpired, VerificationInvalid} {
		m.tokenVerificationTotal.WithLabelValues(result)
	}
	m.poolCheckoutsTotal.WithLabelValues("true")
	m.poolCheckoutsTotal.WithLabelValues("false")
}

func outcomeLabel(outcome directory.Outcome) string {
	return strings.ReplaceAll(outcome.String(), " ", "_")
}

// RecordAuthentication records a finished username and password authentication.
func (m *Metrics) RecordAuthentication(outcome directory.Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	label := outcomeLabel(outcome)
	m.authenticationsTotal.WithLabelValues(label).Inc()
	m.authenticationDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordTokenIssued records an issued token.
func (m *Metrics) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssuedTotal.Inc()
}

// RecordTokenVerification records the result of a token verification, one of the Verification constants.
func (m *Metrics) RecordTokenVerification(result string) {
	if m == nil {
		return
	}
	m.tokenVerificationTotal.WithLabelValues(result).Inc()
}

// ConnectionCheckedOut implements upstreamldap.PoolObserver.
func (m *Metrics) ConnectionCheckedOut(reused bool, wait time.Duration) {
	if m == nil {
		return
	}
	if reused {
		m.poolCheckoutsTotal.WithLabelValues("true").Inc()
	} else {
		m.poolCheckoutsTotal.WithLabelValues("false").Inc()
	}
	m.poolWaitDuration.Observe(wait.Seconds())
}

// ConnectionDiscarded implements upstreamldap.PoolObserver.
func (m *Metrics) ConnectionDiscarded(reason string) {
	if m == nil {
		return
	}
	m.poolDiscardsTotal.WithLabelValues(reason).Inc()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
