package playback

import (
	"strconv"
	"time"
)

// LiveProfile is the fixed live-streaming configuration every player is
// constructed with. The values reproduce the behavior the engine depends
// on: a short automatic live delay, rate-based catch-up instead of seeking,
// and a conservative buffer policy.
type LiveProfile struct {
	// Live delay is automatic, bounded to roughly this many fragments of
	// lag. The manifest's suggested presentation delay wins when present.
	LiveDelayFragmentCount        int
	UseSuggestedPresentationDelay bool

	// Catch-up corrects drift up to MaxDrift seconds by adjusting the
	// playback rate within ±PlaybackRateDelta, never by seeking while
	// under that threshold.
	CatchUpEnabled           bool
	CatchUpMaxDrift          float64
	CatchUpPlaybackRateDelta float64

	// Buffer policy. FastSwitch stays off so the player does not chase
	// aggressive quality up-switches near the live edge.
	FastSwitchEnabled              bool
	BufferPruningInterval          time.Duration
	BufferToKeepSeconds            float64
	BufferTimeAtTopQuality         float64
	BufferTimeAtTopQualityLongForm float64

	// Embedded text/subtitle tracks are disabled by default.
	TextDefaultEnabled bool
}

// DefaultLiveProfile returns the engine's required live configuration.
func DefaultLiveProfile() LiveProfile {
	return LiveProfile{
		LiveDelayFragmentCount:         3,
		UseSuggestedPresentationDelay:  true,
		CatchUpEnabled:                 true,
		CatchUpMaxDrift:                1.0,
		CatchUpPlaybackRateDelta:       0.2,
		FastSwitchEnabled:              false,
		BufferPruningInterval:          10 * time.Second,
		BufferToKeepSeconds:            6,
		BufferTimeAtTopQuality:         8,
		BufferTimeAtTopQualityLongForm: 8,
		TextDefaultEnabled:             false,
	}
}

// TimeRange is one buffered interval of the media timeline, in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

// MediaSink is the single media-rendering surface a player binds to.
// The engine assumes nothing beyond this minimal surface.
type MediaSink interface {
	Play() error
	Pause()
	Seek(seconds float64)
	CurrentTime() float64
	Buffered() []TimeRange

	SetMuted(muted bool)
	Muted() bool

	// Reset clears the source, reloads the surface, and clears any
	// "already started" marker so a later attach can re-prime autoplay.
	Reset()
}

// PlayerError is a runtime failure reported by an active player.
// HTTPStatus is 0 when the failure was not an HTTP response.
type PlayerError struct {
	Code       string
	HTTPStatus int
	Fatal      bool
}

// describePlayerError renders the short reason shown while recovering:
// the HTTP status when one is present, otherwise "network".
func describePlayerError(e PlayerError) string {
	if e.HTTPStatus > 0 {
		return "HTTP " + strconv.Itoa(e.HTTPStatus)
	}
	return "network"
}

// Player owns the decode/network pipeline for one attach. Subscriptions
// return a remove function; the session keeps every remove function it
// registered and invokes them all on teardown so no callback outlives the
// instance it was bound to.
type Player interface {
	// Bind attaches the player to its rendering surface.
	Bind(sink MediaSink) error

	// Load starts streaming the given manifest URL.
	Load(manifestURL string) error

	Play() error
	Seek(seconds float64)

	// Position is the current playback position in seconds.
	Position() float64

	// LiveEdge is the player's estimate of the most recent playable point.
	LiveEdge() float64

	// BufferedEnd is the end of the last buffered range, or 0 when
	// nothing is buffered.
	BufferedEnd() float64

	// IsDynamic reports whether the loaded stream is live (unbounded).
	IsDynamic() bool

	OnStreamInitialized(fn func()) (remove func())
	OnPlaybackError(fn func(PlayerError)) (remove func())

	// Destroy tears the pipeline down. Safe to call exactly once.
	Destroy()
}

// PlayerFactory constructs a fresh Player per attach. Implementations wrap
// the embedded adaptive-streaming library; the engine never reuses a
// player across attaches.
type PlayerFactory interface {
	New(profile LiveProfile) Player
}
