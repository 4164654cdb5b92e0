package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	ctx := context.Background()

	r.ObserveDecision(ctx, "accept", time.Millisecond)
	r.ObserveDecision(ctx, "accept", time.Millisecond)
	r.ObserveDecision(ctx, "reject", time.Millisecond)
	r.ObserveSettingsValidation(false)
	r.ObservePassthrough()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("accept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("reject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.settingsValidations.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.passthrough))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{
		"fsgroup_psp_decisions_total",
		"fsgroup_psp_decision_duration_seconds",
		"fsgroup_psp_settings_validations_total",
		"fsgroup_psp_passthrough_total",
	} {
		assert.True(t, names[name], "metric %q not found", name)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveDecision(context.Background(), "mutate", time.Second)
		r.ObserveSettingsValidation(true)
		r.ObservePassthrough()
	})
}
