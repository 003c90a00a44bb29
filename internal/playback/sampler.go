package playback

// liveLatency is the distance from the live edge, clamped at zero.
// A session that is not live (or a VOD stream) reports 0.
func liveLatency(liveEdge, position float64) float64 {
	d := liveEdge - position
	if d < 0 {
		return 0
	}
	return d
}

// bufferedHorizon is how much playable media lies ahead of the current
// position, clamped at zero; 0 when nothing is buffered.
func bufferedHorizon(lastBufferedEnd, position float64) float64 {
	if lastBufferedEnd <= 0 {
		return 0
	}
	d := lastBufferedEnd - position
	if d < 0 {
		return 0
	}
	return d
}

// sampleTick computes the display metrics from the live handle. It is
// purely observational; a failure racing a mid-teardown player clears the
// displayed values instead of propagating.
func (e *Engine) sampleTick() {
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.metricsSnap = MetricsSnapshot{}
			e.mu.Unlock()
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != modeLive || !e.session.Live() {
		e.metricsSnap = MetricsSnapshot{}
		e.publishMetricsLocked()
		return
	}

	pos, _ := e.session.Position()
	snap := MetricsSnapshot{
		BufferedSeconds: bufferedHorizon(e.session.BufferedEnd(), pos),
	}
	if e.session.IsDynamic() {
		snap.LatencySeconds = liveLatency(e.session.LiveEdge(), pos)
	}
	e.metricsSnap = snap
	e.publishMetricsLocked()
}

// PublishMetrics recomputes the display metrics and pushes them to the
// gauges immediately. It is the refresh hook for the metrics scrape
// handler, so a scrape between sampler ticks still sees fresh values.
func (e *Engine) PublishMetrics() {
	e.sampleTick()
}

// publishMetricsLocked pushes the current snapshot to the prometheus
// gauges. Caller holds e.mu.
func (e *Engine) publishMetricsLocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetLiveLatency(e.metricsSnap.LatencySeconds)
	e.metrics.SetBufferedHorizon(e.metricsSnap.BufferedSeconds)
}
