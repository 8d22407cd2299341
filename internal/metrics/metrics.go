// Package metrics keeps process-wide request counters on a private
// Prometheus registry and renders them in the text exposition format.
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Webhook outcome labels.
const (
	WebhookCreated          = "created"
	WebhookDuplicate        = "duplicate"
	WebhookInvalidSignature = "invalid_signature"
)

// Metric names.
const (
	HTTPRequestsTotal    = "http_requests_total"
	WebhookRequestsTotal = "webhook_requests_total"
)

// Registry holds HTTP and webhook outcome counters. Safe for concurrent use;
// counters only ever increase.
type Registry struct {
	reg     *prometheus.Registry
	http    *prometheus.CounterVec
	webhook *prometheus.CounterVec
}

// NewRegistry returns a registry with no observed series.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		http: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: HTTPRequestsTotal,
				Help: "HTTP responses by route pattern and status code.",
			},
			[]string{"path", "status"},
		),
		webhook: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: WebhookRequestsTotal,
				Help: "Webhook deliveries by outcome.",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTP counts one terminal response for path with the given status.
func (r *Registry) RecordHTTP(path string, status int) {
	r.http.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// RecordWebhook counts one webhook outcome.
func (r *Registry) RecordWebhook(outcome string) {
	r.webhook.WithLabelValues(outcome).Inc()
}

// HTTPCount returns the current count for (path, status). Unobserved keys
// read as zero and are not created.
func (r *Registry) HTTPCount(path string, status int) int64 {
	return r.lookup(HTTPRequestsTotal, map[string]string{
		"path":   path,
		"status": strconv.Itoa(status),
	})
}

// WebhookCount returns the current count for outcome.
func (r *Registry) WebhookCount(outcome string) int64 {
	return r.lookup(WebhookRequestsTotal, map[string]string{"result": outcome})
}

func (r *Registry) lookup(name string, labels map[string]string) int64 {
	families, err := r.reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsEqual(m.GetLabel(), labels) {
				return int64(m.GetCounter().GetValue())
			}
		}
	}
	return 0
}

func labelsEqual(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

// Render returns the text exposition of every observed series, e.g.
//
//	http_requests_total{path="/webhook",status="200"} 3
//	webhook_requests_total{result="created"} 2
//
// preceded by the family's HELP and TYPE comments. A family with no
// observed series is omitted, so a fresh registry renders as "".
func (r *Registry) Render() (string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&b, mf); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}
