package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/roach88/scansync/internal/syncer"
)

// fakeAPI is a minimal tracking API.
type fakeAPI struct {
	mu      sync.Mutex
	down    bool
	status  int
	body    string
	records []map[string]string
	exports int

	srv *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	a := &fakeAPI{status: http.StatusOK, body: `{}`}
	a.srv = httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAPI) set(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status, a.body = status, body
}

func (a *fakeAPI) setDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

func (a *fakeAPI) received() []map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]map[string]string(nil), a.records...)
}

func (a *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case "/login":
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok", "surname": req["surname"], "role": "operator"})
	case "/add_record":
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var rec map[string]string
		_ = json.NewDecoder(r.Body).Decode(&rec)
		a.records = append(a.records, rec)
		w.WriteHeader(a.status)
		_, _ = w.Write([]byte(a.body))
	case "/v1/metrics":
		a.exports++
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (a *fakeAPI) metricExports() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exports
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type env struct {
	db  string
	api *fakeAPI
}

func newEnv(t *testing.T) *env {
	return &env{db: filepath.Join(t.TempDir(), "queue.db"), api: newFakeAPI(t)}
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *env) runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &lockedBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&lockedBuffer{})
	cmd.SetArgs(append([]string{"--db", e.db, "--api", e.api.srv.URL}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (e *env) login(t *testing.T) {
	t.Helper()
	_, err := e.run(t, "login", "Ivanenko", "--password", "secret")
	require.NoError(t, err)
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "scansync", cmd.Use)

	for _, name := range []string{"login", "logout", "submit", "sync", "queue", "watch", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, flag := range []string{"verbose", "format", "config", "db", "api"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "--format", "xml", "queue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "login", "Ivanenko", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ivanenko (operator).")
}

func TestLogin_Refused(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "login", "Ivanenko", "--password", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "Error [E004]: invalid credentials")
}

func TestLogin_RequiresPassword(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "login", "Ivanenko")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestSubmit_Accepted(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run(t, "--format", "json", "submit", " BOX-1 ", "TTN-1")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "accepted", data["kind"])

	assert.Equal(t, []map[string]string{{"user_name": "Ivanenko", "boxid": "BOX-1", "ttn": "TTN-1"}}, e.api.received())
}

func TestSubmit_OperatorFlag(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, err := e.run(t, "submit", "BOX-1", "TTN-1", "--operator", "Petrenko")
	require.NoError(t, err)

	recs := e.api.received()
	require.Len(t, recs, 1)
	assert.Equal(t, "Petrenko", recs[0]["user_name"])
}

func TestSubmit_QueuedWithoutSession(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "submit", "BOX-1", "TTN-1", "--operator", "A")
	require.NoError(t, err)
	assert.Contains(t, out, "offline, queued BOX-1 / TTN-1 (seq 1)")
	assert.Empty(t, e.api.received())

	out, err = e.run(t, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "1 queued scan(s):")
	assert.Contains(t, out, "BOX-1")
}

// Queued scans are delivered by the drain that follows login.
func TestLogin_DrainsBacklog(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "submit", "BOX-1", "TTN-1", "--operator", "A")
	require.NoError(t, err)
	_, err = e.run(t, "submit", "BOX-2", "TTN-2", "--operator", "A")
	require.NoError(t, err)

	out, err := e.run(t, "login", "Ivanenko", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue: synced 2, 0 pending")

	recs := e.api.received()
	require.Len(t, recs, 2)
	assert.Equal(t, "BOX-1", recs[0]["boxid"])
	assert.Equal(t, "BOX-2", recs[1]["boxid"])
}

func TestSubmit_Rejected(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.api.set(http.StatusBadRequest, `{"detail":"unknown ttn"}`)

	out, err := e.run(t, "--format", "json", "submit", "BOX-1", "TTN-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "unknown ttn")

	out, err = e.run(t, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "No queued scans.")
}

func TestSubmit_BlankContainer(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, err := e.run(t, "submit", "  ", "TTN-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, e.api.received())
}

func TestSync(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.api.setDown(true)

	out, err := e.run(t, "submit", "BOX-1", "TTN-1")
	require.NoError(t, err)
	assert.Contains(t, out, "offline, queued")

	out, err = e.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 0, 1 pending (server unreachable, will retry)")

	e.api.setDown(false)
	out, err = e.run(t, "--format", "json", "sync")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["started"])
	report := data["report"].(map[string]any)
	assert.Equal(t, float64(1), report["synced"])
	assert.Equal(t, "empty", report["stopped"])
}

func TestQueue_Quarantined(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.api.setDown(true)
	_, err := e.run(t, "submit", "BOX-1", "TTN-1")
	require.NoError(t, err)

	e.api.setDown(false)
	e.api.set(http.StatusUnprocessableEntity, `{"detail":"bad box"}`)
	out, err := e.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "quarantined 1")

	out, err = e.run(t, "queue", "--quarantined")
	require.NoError(t, err)
	assert.Contains(t, out, "1 quarantined scan(s):")
	assert.Contains(t, out, "422 bad box")

	out, err = e.run(t, "--format", "json", "queue")
	require.NoError(t, err)
	assert.Equal(t, []any{}, decodeResponse(t, out).Data)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, err := e.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, err = e.run(t, "submit", "BOX-1", "TTN-1", "--operator", "A")
	require.NoError(t, err)
	assert.Contains(t, out, "offline, queued")
	assert.Empty(t, e.api.received())
}

func TestConfigFile(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(t.TempDir(), "scansync.cue")
	require.NoError(t, os.WriteFile(path, []byte(`submit_timeout: "2s"`+"\n"), 0644))

	_, err := e.run(t, "--config", path, "queue")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`retries: 3`+"\n"), 0644))
	_, err = e.run(t, "--config", path, "queue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestWatch_AssumeOnlineDrainsBacklog(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.api.setDown(true)
	_, err := e.run(t, "submit", "BOX-1", "TTN-1")
	require.NoError(t, err)
	e.api.setDown(false)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := e.runContext(t, ctx, "watch", "--assume-online")
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool { return len(e.api.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "Watching for connectivity.")
		assert.Contains(t, r.out, "synced #1 BOX-1 / TTN-1 (accepted)")
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatch_PollsAPI(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.api.setDown(true)
	_, err := e.run(t, "submit", "BOX-1", "TTN-1")
	require.NoError(t, err)

	cfgPath := filepath.Join(t.TempDir(), "scansync.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`probe_interval: "20ms"`+"\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.runContext(t, ctx, "--config", cfgPath, "watch")
		done <- err
	}()

	// Probes see 503 while down, which counts as offline.
	time.Sleep(50 * time.Millisecond)
	e.api.setDown(false)

	require.Eventually(t, func() bool { return len(e.api.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestTestCommand_ShippedScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"test", filepath.Join("..", "harness", "testdata", "scenarios")})

	err := cmd.Execute()
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "✓ offline_then_restored")
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestTestCommand_MissingDir(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"test", filepath.Join(t.TempDir(), "nope")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOpenRuntime_MetricsDisabledByDefault(t *testing.T) {
	e := newEnv(t)
	opts := &RootOptions{Database: e.db, APIBase: e.api.srv.URL}

	rt, err := openRuntime(opts, NewRootCommand())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.meterProvider)
}

func TestOpenRuntime_MetricsEndpointExports(t *testing.T) {
	e := newEnv(t)
	t.Cleanup(func() { otel.SetMeterProvider(noop.NewMeterProvider()) })

	cfgPath := filepath.Join(t.TempDir(), "scansync.cue")
	src := "metrics_endpoint: \"" + strings.TrimPrefix(e.api.srv.URL, "http://") + "\"\nmetrics_insecure: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(src), 0644))
	opts := &RootOptions{ConfigPath: cfgPath, Database: e.db, APIBase: e.api.srv.URL}

	rt, err := openRuntime(opts, NewRootCommand())
	require.NoError(t, err)
	require.NotNil(t, rt.meterProvider)
	assert.Same(t, rt.meterProvider, otel.GetMeterProvider())
	require.NotNil(t, rt.metrics)

	report, started := rt.coord.DrainIfIdle(context.Background(), syncer.TriggerManual)
	require.True(t, started)
	assert.Equal(t, 0, report.Remaining)

	rt.Close()
	assert.Equal(t, 1, e.api.metricExports(), "Close flushes recorded metrics")
}
