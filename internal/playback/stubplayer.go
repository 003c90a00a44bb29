package playback

import (
	"errors"
	"sync"
)

var (
	errStubBindFailed = errors.New("stub player: bind failed")
	errStubLoadFailed = errors.New("stub player: load failed")
)

// StubSink is an in-memory MediaSink. It backs the daemon when no real
// rendering surface is wired and doubles as the sink in tests.
type StubSink struct {
	mu       sync.Mutex
	playing  bool
	muted    bool
	position float64
	buffered []TimeRange
	resets   int
}

// NewStubSink returns a new idle sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// Play implements MediaSink.Play.
func (s *StubSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	return nil
}

// Pause implements MediaSink.Pause.
func (s *StubSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

// Seek implements MediaSink.Seek.
func (s *StubSink) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = seconds
}

// CurrentTime implements MediaSink.CurrentTime.
func (s *StubSink) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Buffered implements MediaSink.Buffered.
func (s *StubSink) Buffered() []TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimeRange, len(s.buffered))
	copy(out, s.buffered)
	return out
}

// SetBuffered replaces the buffered ranges. Test/demo control surface.
func (s *StubSink) SetBuffered(ranges []TimeRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffered = ranges
}

// SetMuted implements MediaSink.SetMuted.
func (s *StubSink) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// Muted implements MediaSink.Muted.
func (s *StubSink) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Reset implements MediaSink.Reset: source cleared, playback stopped,
// position back to zero. The mute flag survives a reset so reattachment
// does not re-mute a surface the user already unmuted.
func (s *StubSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.position = 0
	s.buffered = nil
	s.resets++
}

// Resets returns how many times Reset was called.
func (s *StubSink) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Playing reports whether Play was called more recently than Pause/Reset.
func (s *StubSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// StubFactory builds StubPlayers and remembers the most recent one so the
// caller can drive its events.
type StubFactory struct {
	mu      sync.Mutex
	created int
	last    *StubPlayer

	failBind bool
	failLoad bool
}

// NewStubFactory returns an empty factory.
func NewStubFactory() *StubFactory {
	return &StubFactory{}
}

// New implements PlayerFactory.New.
func (f *StubFactory) New(profile LiveProfile) Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &StubPlayer{
		profile:  profile,
		dynamic:  true,
		failBind: f.failBind,
		failLoad: f.failLoad,
	}
	f.created++
	f.last = p
	return p
}

// SetFailBind makes subsequently constructed players fail Bind.
func (f *StubFactory) SetFailBind(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failBind = fail
}

// SetFailLoad makes subsequently constructed players fail Load.
func (f *StubFactory) SetFailLoad(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLoad = fail
}

// Created returns how many players the factory has constructed.
func (f *StubFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// Last returns the most recently constructed player, or nil.
func (f *StubFactory) Last() *StubPlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// StubPlayer is an in-memory Player. It never touches the network; the
// caller scripts its position, live edge, and events.
type StubPlayer struct {
	mu        sync.Mutex
	profile   LiveProfile
	sink      MediaSink
	loadedURL string
	destroyed bool
	dynamic   bool
	position  float64
	liveEdge  float64
	failBind  bool
	failLoad  bool

	nextSub  int
	initSubs map[int]func()
	errSubs  map[int]func(PlayerError)
}

// Bind implements Player.Bind.
func (p *StubPlayer) Bind(sink MediaSink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failBind {
		return errStubBindFailed
	}
	p.sink = sink
	return nil
}

// Load implements Player.Load. It records the (cache-busted) URL; the
// stream-initialized event is emitted by the caller via FireInitialized.
func (p *StubPlayer) Load(manifestURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failLoad {
		return errStubLoadFailed
	}
	p.loadedURL = manifestURL
	return nil
}

// Play implements Player.Play, delegating to the bound sink.
func (p *StubPlayer) Play() error {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Play()
}

// Seek implements Player.Seek.
func (p *StubPlayer) Seek(seconds float64) {
	p.mu.Lock()
	p.position = seconds
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink.Seek(seconds)
	}
}

// Position implements Player.Position.
func (p *StubPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// LiveEdge implements Player.LiveEdge.
func (p *StubPlayer) LiveEdge() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveEdge
}

// BufferedEnd implements Player.BufferedEnd.
func (p *StubPlayer) BufferedEnd() float64 {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return 0
	}
	ranges := sink.Buffered()
	if len(ranges) == 0 {
		return 0
	}
	return ranges[len(ranges)-1].End
}

// IsDynamic implements Player.IsDynamic.
func (p *StubPlayer) IsDynamic() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dynamic
}

// OnStreamInitialized implements Player.OnStreamInitialized.
func (p *StubPlayer) OnStreamInitialized(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initSubs == nil {
		p.initSubs = make(map[int]func())
	}
	id := p.nextSub
	p.nextSub++
	p.initSubs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.initSubs, id)
	}
}

// OnPlaybackError implements Player.OnPlaybackError.
func (p *StubPlayer) OnPlaybackError(fn func(PlayerError)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errSubs == nil {
		p.errSubs = make(map[int]func(PlayerError))
	}
	id := p.nextSub
	p.nextSub++
	p.errSubs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.errSubs, id)
	}
}

// Destroy implements Player.Destroy.
func (p *StubPlayer) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = true
	p.sink = nil
	p.initSubs = nil
	p.errSubs = nil
}

// Destroyed reports whether Destroy was called.
func (p *StubPlayer) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Profile returns the live profile the player was constructed with.
func (p *StubPlayer) Profile() LiveProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile
}

// LoadedURL returns the URL passed to Load.
func (p *StubPlayer) LoadedURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadedURL
}

// SetDynamic scripts the live/VOD classification.
func (p *StubPlayer) SetDynamic(dynamic bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dynamic = dynamic
}

// SetPosition scripts the playback position.
func (p *StubPlayer) SetPosition(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = seconds
}

// SetLiveEdge scripts the live-edge estimate.
func (p *StubPlayer) SetLiveEdge(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liveEdge = seconds
}

// FireInitialized emits the stream-initialized event to all subscribers.
func (p *StubPlayer) FireInitialized() {
	p.mu.Lock()
	subs := make([]func(), 0, len(p.initSubs))
	for _, fn := range p.initSubs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// FireError emits a playback error to all subscribers.
func (p *StubPlayer) FireError(e PlayerError) {
	p.mu.Lock()
	subs := make([]func(PlayerError), 0, len(p.errSubs))
	for _, fn := range p.errSubs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}
