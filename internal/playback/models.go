package playback

// PlaybackTarget is the manifest the engine should currently reconcile
// against. An empty ManifestURL means the backend has not produced one
// (or the stream was stopped).
type PlaybackTarget struct {
	ManifestURL string
}

// BackendStatus is one report from the transcoder control API.
// This also matches the JSON payload of the status feed.
type BackendStatus struct {
	Running     bool   `json:"running"`
	ManifestURL string `json:"manifest_url"`
	LastError   string `json:"last_error"`
}

// ProbeState tracks a single manifest-availability probe cycle.
// ConsecutiveSuccesses resets to 0 on any non-success result; Active is
// true for at most one concurrent cycle.
type ProbeState struct {
	ConsecutiveSuccesses int
	Active               bool
}

// StallSample tracks playback-position movement while a session is live.
// It is reset whenever forward progress is observed or the handle is absent.
type StallSample struct {
	LastPosition              float64
	ConsecutiveStalledSamples int
}

// MetricsSnapshot holds the latest best-effort display metrics.
// Values are cleared (zeroed) whenever computation fails mid-teardown.
type MetricsSnapshot struct {
	LatencySeconds  float64
	BufferedSeconds float64
}

// StatusSnapshot is the engine state exposed to the embedding page.
type StatusSnapshot struct {
	Phase           Phase   `json:"phase"`
	Message         string  `json:"message"`
	ProbeSuccesses  int     `json:"probe_successes"`
	LatencySeconds  float64 `json:"latency_seconds"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	ManifestURL     string  `json:"manifest_url,omitempty"`
	BackendError    string  `json:"backend_error,omitempty"`
}
