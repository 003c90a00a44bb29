package playback

import (
	"fmt"
	"log/slog"
)

// Session owns creation, binding, and teardown of exactly one player at a
// time. It is not safe for concurrent use: the engine serializes every
// call under its own lock, which is what makes the single-handle
// invariant cheap to uphold.
//
// The two event subscriptions a session registers are kept in a
// subscription set and removed explicitly on teardown, so a callback from
// a discarded player can never reach the engine.
type Session struct {
	factory PlayerFactory
	sink    MediaSink
	profile LiveProfile
	log     *slog.Logger

	player Player
	subs   []func()

	// hasEverAutoplayed records that the sink was primed muted once to
	// satisfy autoplay policies. Reattachments must not re-mute a
	// surface the user has since unmuted.
	hasEverAutoplayed bool

	// onInitialized and onFatalError are installed by the engine before
	// the first attach.
	onInitialized func()
	onFatalError  func(e PlayerError)
}

// NewSession returns a session bound to the given sink. Players are
// constructed per attach from factory with the fixed live profile.
func NewSession(factory PlayerFactory, sink MediaSink, profile LiveProfile, log *slog.Logger) *Session {
	return &Session{
		factory: factory,
		sink:    sink,
		profile: profile,
		log:     log,
	}
}

// Attach tears down any prior player, constructs a new one with the live
// profile, binds it to the sink, and loads a cache-busted copy of
// manifestURL. On any synchronous failure the session is left fully torn
// down and the error is returned for the recovery path.
func (s *Session) Attach(manifestURL string) error {
	s.Teardown()

	p := s.factory.New(s.profile)
	if err := p.Bind(s.sink); err != nil {
		p.Destroy()
		s.sink.Reset()
		return fmt.Errorf("attach: %w", err)
	}

	if !s.hasEverAutoplayed {
		s.sink.SetMuted(true)
		s.hasEverAutoplayed = true
	}

	s.subs = append(s.subs, p.OnStreamInitialized(func() {
		if s.onInitialized != nil {
			s.onInitialized()
		}
	}))
	s.subs = append(s.subs, p.OnPlaybackError(func(e PlayerError) {
		if s.onFatalError != nil {
			s.onFatalError(e)
		}
	}))

	s.player = p
	if err := p.Load(withCacheBust(manifestURL, "ts")); err != nil {
		s.Teardown()
		return fmt.Errorf("attach: %w", err)
	}

	s.log.Debug("player attached", slog.String("manifest_url", manifestURL))
	return nil
}

// Teardown removes every subscription the session registered, destroys
// the player, and resets the sink so a later attach can re-prime
// autoplay. Idempotent: calling it twice, or with nothing attached, is a
// no-op beyond the sink reset.
func (s *Session) Teardown() {
	for _, remove := range s.subs {
		remove()
	}
	s.subs = nil

	if s.player != nil {
		s.player.Destroy()
		s.player = nil
	}
	s.sink.Reset()
}

// StartPlayback asks the active player to start. A blocked-autoplay
// failure is logged and swallowed: the stream keeps loading and the user
// can start playback manually.
func (s *Session) StartPlayback() {
	if s.player == nil {
		return
	}
	if err := s.player.Play(); err != nil {
		s.log.Debug("autoplay blocked", slog.String("error", err.Error()))
	}
}

// Live reports whether a player is currently attached.
func (s *Session) Live() bool {
	return s.player != nil
}

// Position returns the active player's playback position. ok is false
// when no player is attached.
func (s *Session) Position() (pos float64, ok bool) {
	if s.player == nil {
		return 0, false
	}
	return s.player.Position(), true
}

// LiveEdge returns the active player's live-edge estimate, or 0 when no
// player is attached.
func (s *Session) LiveEdge() float64 {
	if s.player == nil {
		return 0
	}
	return s.player.LiveEdge()
}

// BufferedEnd returns the end of the last buffered range, or 0.
func (s *Session) BufferedEnd() float64 {
	if s.player == nil {
		return 0
	}
	return s.player.BufferedEnd()
}

// IsDynamic reports whether the attached stream is live (unbounded).
func (s *Session) IsDynamic() bool {
	if s.player == nil {
		return false
	}
	return s.player.IsDynamic()
}

// Seek forwards to the active player; a detached session ignores it.
func (s *Session) Seek(seconds float64) {
	if s.player == nil {
		return
	}
	s.player.Seek(seconds)
}
