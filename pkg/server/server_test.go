package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	admissionv1 "k8s.io/api/admission/v1"

	"github.com/DrSkyle/fsgroup-psp/pkg/admission"
	"github.com/DrSkyle/fsgroup-psp/pkg/config"
	"github.com/DrSkyle/fsgroup-psp/pkg/metrics"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const validateBody = `{
	"request": {
		"uid": "abc",
		"kind": {"group": "", "version": "v1", "kind": "Pod"},
		"operation": "CREATE",
		"object": {"metadata": {"name": "web", "namespace": "apps"}, "spec": {"containers": []%s}}
	},
	"settings": {"rule": "MustRunAs", "ranges": [{"min": 1000, "max": 2000}]}
}`

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := admission.NewValidator(admission.WithLogger(logger), admission.WithMetrics(metrics.NewRecorder(reg)))

	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	st := settings.Settings{Rule: settings.MustRunAs{Ranges: settings.Ranges{{Min: 1000, Max: 2000}}}}
	return New(cfg, v, st, WithLogger(logger), WithGatherer(reg)), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestValidateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/validate", strings.Replace(validateBody, "%s", `, "securityContext": {"fsGroup": 5}`, 1))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"accepted":false,"message":"fsGroup 5 is not included in any range"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/validate", strings.Replace(validateBody, "%s", "", 1))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp admission.ValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.NotNil(t, resp.MutatedObject)
}

func TestValidateEndpointErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/validate", `{"request": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noSpec := `{"request": {"uid": "x", "object": {"kind": "Pod"}}, "settings": {"rule": "RunAsAny"}}`
	rec = do(t, h, http.MethodPost, "/validate", noSpec)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid pod spec")

	rec = do(t, h, http.MethodGet, "/validate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidateSettingsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/validate_settings", `{"rule":"MayRunAs","ranges":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false,"message":"MayRunAs must contain at least one range"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/validate_settings", `{"rule":"RunAsAny"}`)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())
}

func TestProtocolVersionAndHealth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/protocol_version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"v1"`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMutateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	review := `{
		"apiVersion": "admission.k8s.io/v1",
		"kind": "AdmissionReview",
		"request": {
			"uid": "7a1b",
			"kind": {"group": "", "version": "v1", "kind": "Pod"},
			"resource": {"group": "", "version": "v1", "resource": "pods"},
			"operation": "CREATE",
			"object": {"metadata": {"name": "web"}, "spec": {"containers": []}}
		}
	}`
	rec := do(t, h, http.MethodPost, "/mutate", review)
	require.Equal(t, http.StatusOK, rec.Code)

	var out admissionv1.AdmissionReview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Response)
	assert.Equal(t, "7a1b", string(out.Response.UID))
	assert.True(t, out.Response.Allowed)
	assert.JSONEq(t, `[{"op":"add","path":"/spec/securityContext","value":{"fsGroup":1000}}]`, string(out.Response.Patch))

	rec = do(t, h, http.MethodPost, "/mutate", `{"apiVersion": "admission.k8s.io/v1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/mutate", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	do(t, h, http.MethodPost, "/validate", strings.Replace(validateBody, "%s", `, "securityContext": {"fsGroup": 1500}`, 1))

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fsgroup_psp_decisions_total{outcome="accept"} 1`)

	s.cfg.Metrics = false
	rec = do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunFailsOnBadAddress(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.Addr = "256.0.0.1:bad"
	assert.Error(t, s.Run(context.Background()))
}

type brokenWriter struct {
	header http.Header
	status int
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(status int)    { b.status = status }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, _ := newTestServer(t)
	WithLogger(logger)(s)

	w := &brokenWriter{header: http.Header{}}
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.status)
	assert.Contains(t, buf.String(), "Failed to write response")
	assert.Contains(t, buf.String(), "path=/healthz")
	assert.Contains(t, buf.String(), "connection reset")
}
