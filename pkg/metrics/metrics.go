// Package metrics records policy decisions as Prometheus metrics and mirrors the decision
// counter to the global OpenTelemetry meter.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "fsgroup_psp"

// Recorder holds the policy metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	decisions           *prometheus.CounterVec
	decisionDuration    *prometheus.HistogramVec
	settingsValidations *prometheus.CounterVec
	passthrough         prometheus.Counter

	otelDecisions metric.Int64Counter
}

// NewRecorder registers the metrics with reg. Use prometheus.DefaultRegisterer to expose
// them on promhttp.Handler().
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	r := &Recorder{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Policy decisions by outcome.",
		}, []string{"outcome"}),
		decisionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding one admission request.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"outcome"}),
		settingsValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_validations_total",
			Help:      "Settings validations by result.",
		}, []string{"valid"}),
		passthrough: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passthrough_total",
			Help:      "Objects accepted without evaluation because they do not decode as a pod.",
		}),
	}

	counter, err := otel.Meter("fsgroup-psp/policy").Int64Counter(
		"fsgroup_psp.decisions",
		metric.WithDescription("Policy decisions by outcome."),
	)
	if err == nil {
		r.otelDecisions = counter
	}

	return r
}

// ObserveDecision counts one decision. outcome is a policy Kind or "error".
func (r *Recorder) ObserveDecision(ctx context.Context, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(outcome).Inc()
	r.decisionDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if r.otelDecisions != nil {
		r.otelDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (r *Recorder) ObserveSettingsValidation(valid bool) {
	if r == nil {
		return
	}
	r.settingsValidations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (r *Recorder) ObservePassthrough() {
	if r == nil {
		return
	}
	r.passthrough.Inc()
}
