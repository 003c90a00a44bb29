package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// staticSource is a StatusSource returning a scripted report.
type staticSource struct {
	mu  sync.Mutex
	st  BackendStatus
	err error
}

func (s *staticSource) Status(ctx context.Context) (BackendStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st, s.err
}

// newEngineForTest builds an engine with fast probe cadence and dormant
// poll/watchdog/sampler loops; tests drive ticks and backend reports
// directly.
func newEngineForTest(t *testing.T) (*Engine, *StubFactory, *StubSink) {
	t.Helper()
	factory := NewStubFactory()
	sink := NewStubSink()
	cfg := Config{
		PollInterval:     time.Hour,
		ProbeInterval:    2 * time.Millisecond,
		SettleDelay:      2 * time.Millisecond,
		ProbeSuccesses:   2,
		WatchdogInterval: time.Hour,
		SamplerInterval:  time.Hour,
		StallThreshold:   0.05,
		StallSamples:     5,
		LiveEdgeOffset:   0.5,
	}
	e := New(cfg, &staticSource{}, factory, sink, newTestLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.ctx = ctx
	e.mode = modeWaiting
	return e, factory, sink
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// manifestServer serves a manifest existence check with a switchable
// status code.
type manifestServer struct {
	mu   sync.Mutex
	code int
	hits int
}

func (m *manifestServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		code := m.code
		m.hits++
		m.mu.Unlock()
		w.WriteHeader(code)
	}
}

func (m *manifestServer) setCode(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.code = code
}

func (m *manifestServer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

func TestEngine_reaches_live_when_manifest_available(t *testing.T) {
	// Scenario: backend running with a manifest URL, two consecutive
	// 200 probes, settle delay, attach, stream-initialized.
	ms := &manifestServer{code: http.StatusOK}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	e, factory, sink := newEngineForTest(t)
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})

	waitFor(t, "attach", func() bool { return factory.Last() != nil })
	if got := e.Status().Phase; got != PhaseAttaching {
		t.Fatalf("expected attaching before stream-initialized, got %s", got)
	}

	factory.Last().FireInitialized()
	waitFor(t, "live", func() bool { return e.Status().Phase == PhaseLive })

	if !sink.Playing() {
		t.Error("stream-initialized should attempt playback")
	}
	if !strings.Contains(factory.Last().LoadedURL(), "ts=") {
		t.Errorf("attach must cache-bust the manifest URL: %q", factory.Last().LoadedURL())
	}
}

func TestEngine_persistent_404_stays_probing(t *testing.T) {
	ms := &manifestServer{code: http.StatusNotFound}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	e, factory, _ := newEngineForTest(t)
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})

	waitFor(t, "several probe attempts", func() bool { return ms.count() >= 5 })

	snap := e.Status()
	if snap.Phase != PhaseProbingManifest {
		t.Errorf("expected probing_manifest, got %s", snap.Phase)
	}
	if snap.ProbeSuccesses != 0 {
		t.Errorf("success counter must stay 0, got %d", snap.ProbeSuccesses)
	}
	if factory.Created() != 0 {
		t.Errorf("no attach may occur, got %d players", factory.Created())
	}
}

func TestEngine_fatal_error_recovers_with_status_message(t *testing.T) {
	ms := &manifestServer{code: http.StatusOK}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	e, factory, _ := newEngineForTest(t)
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})

	waitFor(t, "attach", func() bool { return factory.Last() != nil })
	first := factory.Last()
	first.FireInitialized()
	waitFor(t, "live", func() bool { return e.Status().Phase == PhaseLive })

	// Manifest disappears, then the player hits a 503.
	ms.setCode(http.StatusNotFound)
	first.FireError(PlayerError{Code: "download", HTTPStatus: 503, Fatal: true})

	waitFor(t, "probing after recovery", func() bool {
		return e.Status().Phase == PhaseProbingManifest
	})

	snap := e.Status()
	if !strings.Contains(snap.Message, "HTTP 503") {
		t.Errorf("recovering message should carry the status: %q", snap.Message)
	}
	if snap.ProbeSuccesses != 0 {
		t.Errorf("counters must reset on recovery, got %d", snap.ProbeSuccesses)
	}
	if !first.Destroyed() {
		t.Error("fatal error must tear the player down")
	}

	// Backend heals: the engine re-attaches on its own.
	ms.setCode(http.StatusOK)
	waitFor(t, "reattach", func() bool { return factory.Created() == 2 })
	factory.Last().FireInitialized()
	waitFor(t, "live again", func() bool { return e.Status().Phase == PhaseLive })
}

func TestEngine_backend_not_running_cancels_probe_and_stops(t *testing.T) {
	ms := &manifestServer{code: http.StatusNotFound}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	e, factory, _ := newEngineForTest(t)
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})
	waitFor(t, "probing", func() bool { return ms.count() >= 2 })

	// Backend reports not-running mid-probe: the poll always wins.
	e.ApplyBackendStatus(BackendStatus{Running: false})

	snap := e.Status()
	if snap.Phase != PhaseStopped {
		t.Fatalf("expected stopped, got %s", snap.Phase)
	}
	if !strings.Contains(snap.Message, "Transcoder offline") {
		t.Errorf("got message %q", snap.Message)
	}

	// The cancelled probe must not keep checking or attach later.
	waitFor(t, "probe drain", func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.probeState.Active
	})
	n := ms.count()
	ms.setCode(http.StatusOK)
	time.Sleep(20 * time.Millisecond)
	if ms.count() > n+1 {
		t.Errorf("probe kept firing after cancellation: %d -> %d", n, ms.count())
	}
	if factory.Created() != 0 {
		t.Error("no attach may occur after backend stop")
	}
}

func TestEngine_stall_watchdog_seeks_to_live_edge(t *testing.T) {
	e, factory, _ := newEngineForTest(t)

	e.mu.Lock()
	e.backendRunning = true
	e.target = PlaybackTarget{ManifestURL: "http://host/live.mpd"}
	e.attachLocked()
	e.mu.Unlock()

	p := factory.Last()
	if p == nil {
		t.Fatal("no player attached")
	}
	p.FireInitialized()
	waitFor(t, "live", func() bool { return e.Status().Phase == PhaseLive })

	p.SetPosition(120.0)
	p.SetLiveEdge(130.0)

	// First tick re-baselines at 120; five frozen samples follow.
	for i := 0; i < 5; i++ {
		e.watchdogTick()
		if got := p.Position(); got != 120.0 {
			t.Fatalf("correction fired early on tick %d: position %v", i+1, got)
		}
	}
	e.watchdogTick()

	if got := p.Position(); got != 129.5 {
		t.Errorf("expected seek to liveEdge-0.5 = 129.5, got %v", got)
	}
	e.mu.Lock()
	stalled := e.stall.stalled()
	e.mu.Unlock()
	if stalled != 0 {
		t.Errorf("stall counter must be 0 after correction, got %d", stalled)
	}
}

func TestEngine_watchdog_no_accrual_while_detached(t *testing.T) {
	e, _, _ := newEngineForTest(t)

	e.mu.Lock()
	e.stall.rebase(10)
	e.stall.observe(10)
	e.mu.Unlock()

	e.watchdogTick() // not live: must reset

	e.mu.Lock()
	stalled := e.stall.stalled()
	e.mu.Unlock()
	if stalled != 0 {
		t.Errorf("expected reset while detached, got %d", stalled)
	}
}

func TestEngine_watchdog_ignores_vod_streams(t *testing.T) {
	e, factory, _ := newEngineForTest(t)

	e.mu.Lock()
	e.backendRunning = true
	e.target = PlaybackTarget{ManifestURL: "http://host/live.mpd"}
	e.attachLocked()
	e.mu.Unlock()

	p := factory.Last()
	p.FireInitialized()
	p.SetDynamic(false)
	p.SetPosition(50)
	p.SetLiveEdge(100)

	for i := 0; i < 10; i++ {
		e.watchdogTick()
	}
	if got := p.Position(); got != 50.0 {
		t.Errorf("watchdog must not seek a non-live stream, position %v", got)
	}
}

func TestEngine_user_stop_suspends_reconciliation(t *testing.T) {
	ms := &manifestServer{code: http.StatusOK}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	e, factory, _ := newEngineForTest(t)
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})
	waitFor(t, "attach", func() bool { return factory.Last() != nil })
	factory.Last().FireInitialized()
	waitFor(t, "live", func() bool { return e.Status().Phase == PhaseLive })

	e.Stop()
	if got := e.Status().Phase; got != PhaseStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	if !factory.Last().Destroyed() {
		t.Error("stop must tear the player down")
	}

	// Backend still running: a stopped engine must not reconcile.
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})
	if got := e.Status().Phase; got != PhaseStopped {
		t.Errorf("user stop must win over backend reports, got %s", got)
	}
	if factory.Created() != 1 {
		t.Errorf("no new player while stopped, got %d", factory.Created())
	}

	// Start resumes from the last known target.
	e.Start()
	waitFor(t, "reattach after start", func() bool { return factory.Created() == 2 })
}

func TestEngine_stale_probe_callback_cannot_mutate_state(t *testing.T) {
	e, _, _ := newEngineForTest(t)

	e.mu.Lock()
	gen := e.generation
	e.mu.Unlock()

	e.Stop() // bumps the generation

	e.noteProbeProgress(gen, 2)
	e.probeDone(gen, nil)

	snap := e.Status()
	if snap.Phase != PhaseStopped {
		t.Errorf("stale probe completion mutated state: %s", snap.Phase)
	}
	if snap.ProbeSuccesses != 0 {
		t.Errorf("stale progress recorded: %d", snap.ProbeSuccesses)
	}
}

func TestEngine_stale_player_events_ignored_after_teardown(t *testing.T) {
	e, factory, _ := newEngineForTest(t)

	e.mu.Lock()
	e.backendRunning = true
	e.target = PlaybackTarget{ManifestURL: "http://host/live.mpd"}
	e.attachLocked()
	gen := e.generation
	e.mu.Unlock()

	e.Stop()

	// Events captured before teardown must be dropped by the
	// generation guard even if replayed directly.
	e.handleStreamInitialized(gen)
	if got := e.Status().Phase; got != PhaseStopped {
		t.Errorf("stale stream-initialized mutated state: %s", got)
	}
	e.handleFatalError(gen, PlayerError{HTTPStatus: 500})
	if got := e.Status().Phase; got != PhaseStopped {
		t.Errorf("stale fatal error mutated state: %s", got)
	}
	if !factory.Last().Destroyed() {
		t.Error("stop must have destroyed the player")
	}
}

func TestEngine_poll_failure_treated_as_backend_down(t *testing.T) {
	e, _, _ := newEngineForTest(t)
	e.source = &staticSource{err: errors.New("connection refused")}

	e.pollOnce(context.Background())

	snap := e.Status()
	if snap.Phase != PhaseStopped {
		t.Errorf("unreachable backend should read as stopped, got %s", snap.Phase)
	}
	if !strings.Contains(snap.Message, "connection refused") {
		t.Errorf("transport error should surface in the message: %q", snap.Message)
	}
}

func TestEngine_waiting_when_running_without_manifest(t *testing.T) {
	e, _, _ := newEngineForTest(t)
	e.ApplyBackendStatus(BackendStatus{Running: true, LastError: "warming up"})

	snap := e.Status()
	if snap.Phase != PhaseWaitingForManifest {
		t.Errorf("expected waiting_for_manifest, got %s", snap.Phase)
	}
	if !strings.Contains(snap.Message, "warming up") {
		t.Errorf("backend error should surface: %q", snap.Message)
	}
}

func TestEngine_attach_failure_routes_to_recovery(t *testing.T) {
	ms := &manifestServer{code: http.StatusOK}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	e, factory, _ := newEngineForTest(t)
	factory.SetFailLoad(true)
	e.ApplyBackendStatus(BackendStatus{Running: true, ManifestURL: ts.URL + "/live.mpd"})

	// The failed attach re-enters probing; once the player stops
	// failing, reconciliation completes on its own.
	waitFor(t, "failed attach", func() bool { return factory.Created() >= 1 })
	factory.SetFailLoad(false)
	waitFor(t, "successful reattach", func() bool {
		p := factory.Last()
		return p != nil && p.LoadedURL() != ""
	})
	factory.Last().FireInitialized()
	waitFor(t, "live after retry", func() bool { return e.Status().Phase == PhaseLive })
}

func TestEngine_run_lifecycle(t *testing.T) {
	ms := &manifestServer{code: http.StatusOK}
	ts := httptest.NewServer(ms.handler())
	defer ts.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":true,"manifest_url":"` + ts.URL + `/live.mpd","last_error":null}`))
	}))
	defer backend.Close()

	factory := NewStubFactory()
	sink := NewStubSink()
	cfg := Config{
		PollInterval:     5 * time.Millisecond,
		ProbeInterval:    2 * time.Millisecond,
		SettleDelay:      2 * time.Millisecond,
		ProbeSuccesses:   2,
		WatchdogInterval: 5 * time.Millisecond,
		SamplerInterval:  5 * time.Millisecond,
	}
	e := New(cfg, NewBackendStatusClient(backend.URL, nil), factory, sink, newTestLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	waitFor(t, "attach via run loops", func() bool { return factory.Last() != nil })
	factory.Last().FireInitialized()
	waitFor(t, "live via run loops", func() bool { return e.Status().Phase == PhaseLive })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if got := e.Status().Phase; got != PhaseStopped {
		t.Errorf("expected stopped after shutdown, got %s", got)
	}
	if !factory.Last().Destroyed() {
		t.Error("shutdown must destroy the player")
	}
}
