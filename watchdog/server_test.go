package watchdog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type testServer struct {
	state   *State
	metrics *metrics
	url     string
}

func newTestServer(t *testing.T, lookup func() string) *testServer {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	state := NewState(lookup)
	t.Cleanup(func() { state.Close() })

	cs := newControlServer(zap.NewNop().Sugar(), state, m, reg)
	s := httptest.NewServer(cs.Handler())
	t.Cleanup(s.Close)

	return &testServer{state: state, metrics: m, url: s.URL}
}

func (s *testServer) post(t *testing.T, path string) (*http.Response, string) {
	resp, err := http.Post(s.url+path, "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestControlResponses(t *testing.T) {
	cases := []struct {
		path    string
		expBody string
		expExit bool
		expCode ExitCode
	}{
		{path: "/api/ping", expBody: "pong"},
		{path: "/api/enableNotify", expBody: "ok"},
		{path: "/api/disableNotify", expBody: "ok"},
		{path: "/api/shutdown", expBody: "ok", expExit: true, expCode: ExitOK},
		{path: "/api/restart", expBody: "ok", expExit: true, expCode: ExitRestart},
	}

	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			s := newTestServer(t, noAddr)

			resp, body := s.post(t, c.path)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, c.expBody, body)
			assert.Equal(t, "max-age=0,no-cache", resp.Header.Get("Cache-Control"))
			assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
			assert.EqualValues(t, len(c.expBody), resp.ContentLength)
			assert.True(t, resp.Close, "control responses close the connection")

			assert.Equal(t, c.expExit, s.state.Terminated())
			if c.expExit {
				assert.Equal(t, c.expCode, s.state.ExitCode())
			} else {
				assert.Equal(t, ExitUncaughtException, s.state.ExitCode())
			}
		})
	}
}

func TestFirstExitRequestWins(t *testing.T) {
	s := newTestServer(t, noAddr)

	s.post(t, "/api/restart")
	s.post(t, "/api/shutdown")

	assert.Equal(t, ExitRestart, s.state.ExitCode())
}

func TestPingForwardsWatchdogWhenEnabled(t *testing.T) {
	sock := newNotifySocket(t)
	s := newTestServer(t, sock.lookup)

	_, body := s.post(t, "/api/ping")
	assert.Equal(t, "pong", body)
	sock.none(50 * time.Millisecond)

	_, body = s.post(t, "/api/enableNotify")
	assert.Equal(t, "ok", body)
	assert.True(t, s.state.NotifyEnabled())

	_, body = s.post(t, "/api/ping")
	assert.Equal(t, "pong", body)
	assert.Equal(t, "WATCHDOG=1", sock.next(time.Second))
	sock.none(50 * time.Millisecond)

	_, body = s.post(t, "/api/disableNotify")
	assert.Equal(t, "ok", body)
	assert.False(t, s.state.NotifyEnabled())

	_, body = s.post(t, "/api/ping")
	assert.Equal(t, "pong", body)
	sock.none(50 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.notifySends.WithLabelValues("WATCHDOG=1", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.controlRequests.WithLabelValues("ping")))
}

func TestEnableNotifyWithoutAddr(t *testing.T) {
	s := newTestServer(t, noAddr)

	resp, body := s.post(t, "/api/enableNotify")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
	assert.False(t, s.state.NotifyEnabled())

	_, body = s.post(t, "/api/ping")
	assert.Equal(t, "pong", body)
}

func TestEnableNotifyFailureIsNotSurfaced(t *testing.T) {
	s := newTestServer(t, func() string { return "/nonexistent/notify.sock" })

	resp, body := s.post(t, "/api/enableNotify")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
	assert.False(t, s.state.NotifyEnabled())
}

func TestConcurrentPings(t *testing.T) {
	sock := newNotifySocket(t)
	s := newTestServer(t, sock.lookup)
	require.NoError(t, s.state.EnableNotify())

	const n = 20

	// read while the pings run, the supervisor's receive queue is shorter than n
	received := make(chan []string, 1)
	go func() {
		var got []string
		buf := make([]byte, 256)
		sock.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for len(got) < n {
			c, _, err := sock.conn.ReadFrom(buf)
			if err != nil {
				break
			}
			got = append(got, string(buf[:c]))
		}
		received <- got
	}()

	group, _ := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		group.Go(func() error {
			resp, err := http.Post(s.url+"/api/ping", "", nil)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		})
	}
	require.NoError(t, group.Wait())

	got := <-received
	sock.none(50 * time.Millisecond)

	require.Len(t, got, n)
	for _, d := range got {
		assert.Equal(t, "WATCHDOG=1", d)
	}
	assert.Equal(t, float64(n), testutil.ToFloat64(s.metrics.notifySends.WithLabelValues("WATCHDOG=1", "ok")))
}

func TestPingsWithStalledSupervisor(t *testing.T) {
	sock := newNotifySocket(t) // never read
	s := newTestServer(t, sock.lookup)
	require.NoError(t, s.state.EnableNotify())

	for i := 0; i < 30; i++ {
		resp, body := s.post(t, "/api/ping")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "pong", body)
	}

	resp, body := s.post(t, "/api/shutdown")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
	assert.True(t, s.state.Terminated())
}

func TestUnroutedRequests(t *testing.T) {
	s := newTestServer(t, noAddr)

	resp, err := http.Get(s.url + "/api/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = s.post(t, "/api/reboot")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, s.state.Terminated())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, noAddr)
	s.post(t, "/api/ping")

	resp, err := http.Get(s.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(b), `watchdog_control_requests_total{operation="ping"} 1`), string(b))
}
