package playback

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-playback-engine/internal/platform/metrics"
)

const defaultHTTPTimeout = 5 * time.Second

// mode is the engine's canonical lifecycle state. DisplayStatus is
// derived from it, never the other way around.
type mode int

const (
	modeInitializing mode = iota
	modeWaiting
	modeProbing
	modeAttaching
	modeLive
	modeRecovering
	modeStopped
)

// Config carries the engine's timing and threshold knobs. Zero values are
// replaced with the defaults the engine was designed around.
type Config struct {
	PollInterval     time.Duration // backend status poll cadence
	ProbeInterval    time.Duration // manifest probe cadence
	SettleDelay      time.Duration // pause between readiness and attach
	ProbeSuccesses   int           // consecutive successes before attach
	WatchdogInterval time.Duration
	SamplerInterval  time.Duration
	StallThreshold   float64 // movement below this counts as stalled
	StallSamples     int     // consecutive stalled samples before seeking
	LiveEdgeOffset   float64 // seek target is liveEdge minus this
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval:     5 * time.Second,
		ProbeInterval:    1 * time.Second,
		SettleDelay:      500 * time.Millisecond,
		ProbeSuccesses:   2,
		WatchdogInterval: 1 * time.Second,
		SamplerInterval:  200 * time.Millisecond,
		StallThreshold:   0.05,
		StallSamples:     5,
		LiveEdgeOffset:   0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = d.ProbeInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.ProbeSuccesses <= 0 {
		c.ProbeSuccesses = d.ProbeSuccesses
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = d.WatchdogInterval
	}
	if c.SamplerInterval <= 0 {
		c.SamplerInterval = d.SamplerInterval
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = d.StallThreshold
	}
	if c.StallSamples <= 0 {
		c.StallSamples = d.StallSamples
	}
	if c.LiveEdgeOffset <= 0 {
		c.LiveEdgeOffset = d.LiveEdgeOffset
	}
	return c
}

// Engine reconciles the backend's reported manifest with an attached
// player: probe until the manifest is fetchable, attach, watch for stalls,
// and route every failure back through one recovery entry point.
//
// All state lives behind one mutex. Async completions (probe results,
// player events, timer ticks) re-check a generation token under the
// lock, so a callback that fires after teardown can no longer mutate
// state.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	source  StatusSource
	session *Session
	probe   *Probe

	mu sync.Mutex

	ctx context.Context // run-scoped; set by Run

	mode           mode
	generation     string
	target         PlaybackTarget
	backendRunning bool
	backendError   string
	recoveryReason string
	userStopped    bool

	probeState  ProbeState
	probeCancel context.CancelFunc

	stall       *stallTracker
	metricsSnap MetricsSnapshot
}

// New builds an engine around the given backend status source, player
// factory, and media sink. Metrics may be nil to disable recording
// (e.g. in tests).
func New(cfg Config, source StatusSource, factory PlayerFactory, sink MediaSink, log *slog.Logger, met *metrics.Metrics) *Engine {
	cfg = cfg.withDefaults()
	probeClient := &http.Client{Timeout: defaultHTTPTimeout}
	e := &Engine{
		cfg:        cfg,
		log:        log,
		metrics:    met,
		source:     source,
		session:    NewSession(factory, sink, DefaultLiveProfile(), log),
		probe:      NewProbe(probeClient, cfg.ProbeInterval, cfg.SettleDelay, cfg.ProbeSuccesses, log, met),
		mode:       modeInitializing,
		generation: uuid.NewString(),
		stall:      newStallTracker(cfg.StallThreshold, cfg.StallSamples),
	}
	return e
}

// Run drives the engine's loops: backend status poll, manifest probe
// (while active), stall watchdog, and metrics sampler. It blocks until
// ctx is cancelled, then tears everything down.
func (e *Engine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.ctx = runCtx
	if e.mode == modeInitializing {
		e.mode = modeWaiting
	}
	e.mu.Unlock()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.pollLoop(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tickLoop(runCtx, e.cfg.WatchdogInterval, e.watchdogTick)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tickLoop(runCtx, e.cfg.SamplerInterval, e.sampleTick)
	}()

	<-runCtx.Done()

	e.mu.Lock()
	e.bumpGenerationLocked()
	e.cancelProbeLocked()
	e.session.Teardown()
	e.mode = modeStopped
	e.mu.Unlock()

	cancel()
	wg.Wait()
}

// tickLoop invokes fn once per interval until ctx is cancelled.
func tickLoop(ctx context.Context, interval time.Duration, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// pollLoop polls the backend status feed. The first poll is immediate so
// startup does not wait a full interval.
func (e *Engine) pollLoop(ctx context.Context) {
	e.pollOnce(ctx)
	t := time.NewTicker(e.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.pollOnce(ctx)
		}
	}
}

// pollOnce fetches one backend status report. A transport or decode error
// means the backend is unreachable and is treated as not running, with
// the error text carried into the display message.
func (e *Engine) pollOnce(ctx context.Context) {
	st, err := e.source.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.log.Debug("backend status poll failed", slog.String("error", err.Error()))
		st = BackendStatus{Running: false, LastError: err.Error()}
	}
	e.ApplyBackendStatus(st)
}

// ApplyBackendStatus feeds one authoritative backend report into the
// engine. running=false forces unconditional teardown, cancelling any
// in-flight probe; running=true with a manifest URL starts probing unless
// a session already exists or the user stopped playback.
func (e *Engine) ApplyBackendStatus(st BackendStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.backendRunning = st.Running
	e.backendError = st.LastError

	if !st.Running {
		e.target = PlaybackTarget{}
		e.stopSessionLocked()
		e.mode = modeStopped
		return
	}

	e.target = PlaybackTarget{ManifestURL: st.ManifestURL}

	if e.userStopped {
		e.mode = modeStopped
		return
	}

	switch e.mode {
	case modeProbing, modeAttaching, modeLive:
		// Reconciliation already in flight against the live target.
		return
	}

	if st.ManifestURL == "" {
		e.mode = modeWaiting
		return
	}
	e.startProbeLocked()
}

// Stop is the explicit user stop: cancel all pending work, tear down the
// session, and suspend attach attempts until Start is called. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userStopped = true
	e.stopSessionLocked()
	e.mode = modeStopped
}

// Start clears a prior user stop so the next reconciliation step can run.
// If the backend already reports a manifest, probing begins immediately.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.userStopped && e.mode != modeStopped {
		return
	}
	e.userStopped = false
	e.recoveryReason = ""
	if e.backendRunning && e.target.ManifestURL != "" {
		e.startProbeLocked()
		return
	}
	if e.backendRunning {
		e.mode = modeWaiting
		return
	}
	e.mode = modeStopped
}

// Status returns the engine snapshot for the embedding page.
func (e *Engine) Status() StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	ds := projectStatus(statusInput{
		mode:           e.mode,
		probeSuccesses: e.probeState.ConsecutiveSuccesses,
		probeRequired:  e.cfg.ProbeSuccesses,
		recoveryReason: e.recoveryReason,
		backendRunning: e.backendRunning,
		backendError:   e.backendError,
		userStopped:    e.userStopped,
	})
	return StatusSnapshot{
		Phase:           ds.Phase,
		Message:         ds.Message,
		ProbeSuccesses:  e.probeState.ConsecutiveSuccesses,
		LatencySeconds:  e.metricsSnap.LatencySeconds,
		BufferedSeconds: e.metricsSnap.BufferedSeconds,
		ManifestURL:     e.target.ManifestURL,
		BackendError:    e.backendError,
	}
}

// stopSessionLocked is the shared cancel-everything path used by explicit
// stop, backend not-running, and run teardown. Caller holds e.mu.
func (e *Engine) stopSessionLocked() {
	e.bumpGenerationLocked()
	e.cancelProbeLocked()
	e.session.Teardown()
	e.stall.reset()
	e.metricsSnap = MetricsSnapshot{}
	e.publishMetricsLocked()
}

// bumpGenerationLocked invalidates every outstanding async completion.
func (e *Engine) bumpGenerationLocked() {
	e.generation = uuid.NewString()
}

// cancelProbeLocked cancels the active probe cycle, if any, and resets
// probe counters.
func (e *Engine) cancelProbeLocked() {
	if e.probeCancel != nil {
		e.probeCancel()
		e.probeCancel = nil
	}
	e.probeState = ProbeState{}
}

// startProbeLocked begins a probe cycle against the current target.
// Starting while a cycle is active is a no-op. Caller holds e.mu.
func (e *Engine) startProbeLocked() {
	if e.probeState.Active {
		return
	}
	if e.ctx == nil || e.ctx.Err() != nil {
		return
	}

	url := e.target.ManifestURL
	pctx, cancel := context.WithCancel(e.ctx)
	e.probeCancel = cancel
	e.probeState = ProbeState{Active: true}
	e.mode = modeProbing
	gen := e.generation

	e.log.Info("probing manifest", slog.String("manifest_url", url))

	go func() {
		err := e.probe.Run(pctx, url, func(successes int) {
			e.noteProbeProgress(gen, successes)
		})
		e.probeDone(gen, err)
	}()
}

// noteProbeProgress records the running consecutive-success count. A
// stale generation means the cycle was cancelled after this result was
// already in flight; it must not mutate state.
func (e *Engine) noteProbeProgress(gen string, successes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.probeState.ConsecutiveSuccesses = successes
	if successes > 0 {
		// First confirmed availability ends the recovering message.
		e.recoveryReason = ""
	}
}

// probeDone completes a probe cycle: on readiness it attaches, on
// cancellation it leaves state to whoever cancelled.
func (e *Engine) probeDone(gen string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.probeState.Active = false
	e.probeCancel = nil
	if err != nil {
		return
	}
	e.attachLocked()
}

// attachLocked creates and binds the player. Caller holds e.mu.
func (e *Engine) attachLocked() {
	e.mode = modeAttaching
	gen := e.generation

	e.session.onInitialized = func() { e.handleStreamInitialized(gen) }
	e.session.onFatalError = func(pe PlayerError) { e.handleFatalError(gen, pe) }

	if err := e.session.Attach(e.target.ManifestURL); err != nil {
		e.log.Warn("attach failed", slog.String("error", err.Error()))
		e.recoverLocked("attach failed")
		return
	}
	if e.metrics != nil {
		e.metrics.IncAttaches()
	}
}

// handleStreamInitialized marks the session live and attempts autoplay.
func (e *Engine) handleStreamInitialized(gen string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.mode = modeLive
	e.recoveryReason = ""
	if pos, ok := e.session.Position(); ok {
		e.stall.rebase(pos)
	}
	e.session.StartPlayback()
	e.log.Info("stream live", slog.String("manifest_url", e.target.ManifestURL))
}

// handleFatalError routes a runtime player error into recovery.
func (e *Engine) handleFatalError(gen string, pe PlayerError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	reason := describePlayerError(pe)
	e.log.Warn("fatal player error",
		slog.String("code", pe.Code),
		slog.String("reason", reason))
	e.recoverLocked(reason)
}

// recoverLocked is the single recovery entry point every failure path
// converges on: teardown, clear counters, show the offline state with a
// distinguishing message, restart probing. Retries are unbounded; the
// backend may still be starting. Caller holds e.mu.
func (e *Engine) recoverLocked(reason string) {
	e.bumpGenerationLocked()
	e.cancelProbeLocked()
	e.session.Teardown()
	e.stall.reset()
	e.metricsSnap = MetricsSnapshot{}
	e.publishMetricsLocked()
	e.recoveryReason = reason
	e.mode = modeRecovering
	if e.metrics != nil {
		e.metrics.IncRecoveries()
	}

	if e.backendRunning && e.target.ManifestURL != "" && !e.userStopped {
		e.startProbeLocked()
	}
}

// watchdogTick takes one stall sample. It fires a live-edge correction
// when five consecutive samples show essentially no movement while the
// stream is live and unbounded.
func (e *Engine) watchdogTick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != modeLive || !e.session.Live() {
		e.stall.reset()
		return
	}
	if !e.session.IsDynamic() {
		e.stall.reset()
		return
	}

	pos, ok := e.session.Position()
	if !ok {
		e.stall.reset()
		return
	}
	if !e.stall.observe(pos) {
		return
	}

	target := e.session.LiveEdge() - e.cfg.LiveEdgeOffset
	if target < 0 {
		target = 0
	}
	e.log.Info("stall detected, seeking to live edge",
		slog.Float64("position", pos),
		slog.Float64("target", target))
	e.session.Seek(target)
	e.stall.rebase(target)
	if e.metrics != nil {
		e.metrics.IncStallsCorrected()
	}
}
