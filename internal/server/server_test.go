package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/progress/sinks"
)

type fixedStatus struct {
	status sinks.Status
}

func (f fixedStatus) Snapshot() sinks.Status { return f.status }

func newTestServer(t *testing.T, status StatusSource) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(status, reg, reg, zap.NewNop())
	require.NoError(t, err)
	return s, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz").Code)
	s.SetReady(true)
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz").Code)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, fixedStatus{status: sinks.Status{
		Running:     true,
		Outer:       4,
		Discoveries: []string{"https://x.test/2/10042"},
	}})

	rec := get(t, s.Handler(), "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var got sinks.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Running)
	require.Equal(t, 4, got.Outer)
	require.Equal(t, []string{"https://x.test/2/10042"}, got.Discoveries)

	empty, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusNotFound, get(t, empty.Handler(), "/v1/status").Code)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t, nil)
	probes := prometheus.NewCounter(prometheus.CounterOpts{Name: "idprobe_test_probes_total", Help: "test"})
	reg.MustRegister(probes)
	probes.Add(3)

	get(t, s.Handler(), "/healthz")
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "idprobe_test_probes_total 3")
	require.Equal(t, 1.0, testutil.ToFloat64(s.requests.WithLabelValues(http.MethodGet, "/healthz", "200")))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), "ok")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(nil, reg, reg, nil)
	require.NoError(t, err)
	_, err = New(nil, reg, reg, nil)
	require.Error(t, err)
}
