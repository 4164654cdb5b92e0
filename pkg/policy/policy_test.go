package policy

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

const (
	podWithoutSecurityContext = `{
		"apiVersion": "v1",
		"kind": "Pod",
		"metadata": {"name": "nginx", "namespace": "default"},
		"spec": {"containers": [{"name": "nginx", "image": "nginx:1.27"}]}
	}`

	podWithEmptySecurityContext = `{
		"apiVersion": "v1",
		"kind": "Pod",
		"metadata": {"name": "nginx", "namespace": "default"},
		"spec": {
			"containers": [{"name": "nginx", "image": "nginx:1.27"}],
			"securityContext": {"runAsNonRoot": true, "runAsUser": 1001}
		}
	}`

	podWithNullSecurityContext = `{
		"apiVersion": "v1",
		"kind": "Pod",
		"metadata": {"name": "nginx"},
		"spec": {"containers": [{"name": "nginx", "image": "nginx:1.27"}], "securityContext": null}
	}`

	podWithoutSpec = `{"apiVersion": "v1", "kind": "Pod", "metadata": {"name": "nginx"}}`
)

func podWithFSGroup(v string) string {
	return `{
		"apiVersion": "v1",
		"kind": "Pod",
		"metadata": {"name": "nginx", "namespace": "default"},
		"spec": {
			"containers": [{"name": "nginx", "image": "nginx:1.27"}],
			"securityContext": {"fsGroup": ` + v + `}
		}
	}`
}

func mustDecode(t *testing.T, raw string) *Workload {
	t.Helper()
	w, err := DecodeWorkload([]byte(raw))
	require.NoError(t, err)
	return w
}

func mayRunAs(ranges ...settings.Range) settings.Settings {
	return settings.Settings{Rule: settings.MayRunAs{Ranges: ranges}}
}

func mustRunAs(ranges ...settings.Range) settings.Settings {
	return settings.Settings{Rule: settings.MustRunAs{Ranges: ranges}}
}

func TestDecide(t *testing.T) {
	single := []settings.Range{{Min: 1000, Max: 2000}}
	two := []settings.Range{{Min: 100, Max: 200}, {Min: 1000, Max: 2000}}

	tests := []struct {
		name     string
		pod      string
		settings settings.Settings
		want     Outcome
	}{
		{"run as any without security context", podWithoutSecurityContext, settings.Settings{Rule: settings.RunAsAny{}}, Accept{}},
		{"run as any with any fsGroup", podWithFSGroup("1"), settings.Default(), Accept{}},
		{"run as any zero value settings", podWithFSGroup("99999"), settings.Settings{}, Accept{}},

		{"may run as without security context", podWithoutSecurityContext, mayRunAs(single...), Accept{}},
		{"may run as with empty fsGroup", podWithEmptySecurityContext, mayRunAs(single...), Accept{}},
		{"may run as with null security context", podWithNullSecurityContext, mayRunAs(single...), Accept{}},
		{"may run as with null fsGroup", podWithFSGroup("null"), mayRunAs(single...), Accept{}},
		{"may run as lower bound", podWithFSGroup("1000"), mayRunAs(single...), Accept{}},
		{"may run as upper bound", podWithFSGroup("2000"), mayRunAs(single...), Accept{}},
		{"may run as in some range", podWithFSGroup("1000"), mayRunAs(two...), Accept{}},
		{"may run as in no range", podWithFSGroup("100"), mayRunAs(single...), Reject{Message: "fsGroup 100 is not included in any range"}},
		{"may run as above range", podWithFSGroup("2001"), mayRunAs(single...), Reject{Message: "fsGroup 2001 is not included in any range"}},

		{"must run as lower bound", podWithFSGroup("1000"), mustRunAs(single...), Accept{}},
		{"must run as upper bound", podWithFSGroup("2000"), mustRunAs(single...), Accept{}},
		{"must run as in some range", podWithFSGroup("1000"), mustRunAs(two...), Accept{}},
		{"must run as in no range", podWithFSGroup("100"), mustRunAs(single...), Reject{Message: "fsGroup 100 is not included in any range"}},
		{"must run as negative value", podWithFSGroup("-5"), mustRunAs(single...), Reject{Message: "fsGroup -5 is not included in any range"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(mustDecode(t, tt.pod), tt.settings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// A set fsGroup that is not a 64-bit integer never reaches Decide, so it cannot be
// replaced by a MustRunAs default.
func TestMalformedFSGroupIsNeverDefaulted(t *testing.T) {
	for _, v := range []string{"1000.5", "1e20", "-1e20", `"1000"`} {
		t.Run(v, func(t *testing.T) {
			w, err := DecodeWorkload([]byte(podWithFSGroup(v)))
			assert.ErrorIs(t, err, ErrUndecodable)
			assert.Nil(t, w)
		})
	}
}

func TestDecideMustRunAsMutates(t *testing.T) {
	g := goldie.New(t)

	tests := []struct {
		name   string
		pod    string
		ranges []settings.Range
		want   int64
	}{
		{"must_run_as_empty_security_context", podWithoutSecurityContext, []settings.Range{{Min: 1000, Max: 2000}}, 1000},
		{"must_run_as_empty_security_context_unordered", podWithoutSecurityContext, []settings.Range{{Min: 3000, Max: 4000}, {Min: 1000, Max: 2000}}, 3000},
		{"must_run_as_empty_fsgroup", podWithEmptySecurityContext, []settings.Range{{Min: 1000, Max: 2000}}, 1000},
		{"must_run_as_empty_fsgroup_unordered", podWithEmptySecurityContext, []settings.Range{{Min: 3000, Max: 4000}, {Min: 1000, Max: 2000}}, 3000},
		{"must_run_as_null_security_context", podWithNullSecurityContext, []settings.Range{{Min: 1000, Max: 2000}}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := mustDecode(t, tt.pod)

			got, err := Decide(original, mustRunAs(tt.ranges...))
			require.NoError(t, err)

			mutate, ok := got.(Mutate)
			require.True(t, ok, "expected Mutate, got %#v", got)
			fsGroup, ok := mutate.Workload.FSGroup()
			require.True(t, ok)
			assert.Equal(t, tt.want, fsGroup)

			_, ok = original.FSGroup()
			assert.False(t, ok, "input workload must not be modified")

			g.AssertJson(t, tt.name, mutate.Workload.Object())
		})
	}
}

func TestDecideMissingSpecIsAnError(t *testing.T) {
	for _, s := range []settings.Settings{settings.Default(), mayRunAs(settings.Range{Min: 1, Max: 2}), mustRunAs(settings.Range{Min: 1, Max: 2})} {
		out, err := Decide(mustDecode(t, podWithoutSpec), s)
		assert.ErrorIs(t, err, ErrInvalidPodSpec, s.String())
		assert.Nil(t, out)
	}

	_, err := Decide(mustDecode(t, `{"kind":"Pod","spec":null}`), settings.Default())
	assert.ErrorIs(t, err, ErrInvalidPodSpec)

	_, err = Decide(nil, settings.Default())
	assert.ErrorIs(t, err, ErrInvalidPodSpec)
}

func TestDecideMustRunAsWithoutRangesIsInternalError(t *testing.T) {
	_, err := Decide(mustDecode(t, podWithoutSecurityContext), mustRunAs())
	assert.ErrorIs(t, err, settings.ErrNoRanges)

	// A value that is already set is still judged, even with nothing to default to.
	out, err := Decide(mustDecode(t, podWithFSGroup("7")), mustRunAs())
	require.NoError(t, err)
	assert.Equal(t, Reject{Message: RejectMessage(7)}, out)
}

func TestOutcomeKinds(t *testing.T) {
	assert.Equal(t, "accept", Accept{}.Kind())
	assert.Equal(t, "reject", Reject{}.Kind())
	assert.Equal(t, "mutate", Mutate{}.Kind())
}
