package fallingnotes

import (
	"errors"
	"sync"

	intaudio "github.com/kobeyabkk/falling-notes-piano/internal/audio"
	"github.com/kobeyabkk/falling-notes-piano/internal/config"
	"github.com/kobeyabkk/falling-notes-piano/internal/effects"
	"github.com/kobeyabkk/falling-notes-piano/internal/engine"
	"github.com/kobeyabkk/falling-notes-piano/internal/midifile"
	"github.com/kobeyabkk/falling-notes-piano/internal/sampler"
	"github.com/kobeyabkk/falling-notes-piano/internal/song"
	"github.com/kobeyabkk/falling-notes-piano/internal/synth"
)

// ErrInvalidRange is returned when a repeat point B does not lie after
// point A.
var ErrInvalidRange = engine.ErrInvalidRange

// Note is one playable note of a song.
type Note struct {
	Pitch    int     // MIDI note number
	Start    float64 // seconds from the top of the song
	End      float64 // seconds from the top of the song
	Velocity float64 // 0..1
}

// NoteSource supplies a song from somewhere other than a MIDI file.
type NoteSource interface {
	Title() string
	Notes() []Note
	Duration() float64
}

// NoteBox is one on-screen note in viewport pixels; y grows downward and
// the bottom edge reaches the trigger line at the note's start time.
type NoteBox struct {
	ID      int
	Note    Note
	TopY    float64
	BottomY float64
	Lit     bool
}

// Frame is one animation frame of the falling-notes view. Its slices are
// reused by the next Advance call.
type Frame struct {
	Time      float64
	Duration  float64
	Rate      float64
	Playing   bool
	Looped    bool
	Wrapped   bool
	Ended     bool
	NearLine  int
	Triggered []Note
	Visible   []NoteBox
}

// EventKind identifies playback events delivered by Watch().
type EventKind int

const (
	EventLoaded EventKind = iota
	EventStarted
	EventPaused
	EventStopped
	EventSeeked
	EventRateChanged
	EventLooped
	EventRepeatWrapped
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventSeeked:
		return "seeked"
	case EventRateChanged:
		return "rate changed"
	case EventLooped:
		return "looped"
	case EventRepeatWrapped:
		return "repeat wrapped"
	case EventEnded:
		return "ended"
	}
	return "unknown"
}

// PlaybackEvent carries transport and playback notifications from Watch().
type PlaybackEvent struct {
	Kind EventKind
	Time float64 // playback position when the event fired
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	settings  config.Settings
	sampleDir string
	clock     func() float64
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{settings: config.Default()}
}

func WithSettings(s config.Settings) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.settings = s
	}
}

// WithSampleDir points the player at a piano sample kit, overriding the
// settings file. Until the kit finishes loading, notes fall back to the
// synthesizer.
func WithSampleDir(dir string) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleDir = dir
	}
}

// WithClock drives playback from the given monotonic seconds source
// instead of the audio device. No device is opened; intended for tests
// and offline rendering.
func WithClock(fn func() float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.clock = fn
	}
}

// mixSource sums the synthesizer and the sampler into one device stream
// and runs the master bus chain over the result.
type mixSource struct {
	a, b interface{ Process([]float32) }
	bus  *effects.Chain
	tmp  []float32
}

func (m *mixSource) Process(dst []float32) {
	m.a.Process(dst)
	if m.b != nil {
		if cap(m.tmp) < len(dst) {
			m.tmp = make([]float32, len(dst))
		}
		tmp := m.tmp[:len(dst)]
		m.b.Process(tmp)
		for i := range dst {
			dst[i] += tmp[i]
		}
	}
	if m.bus != nil {
		m.bus.Apply(dst)
	}
}

// masterBus builds the output chain: optional room reverb, then a
// limiter so dense chords cannot clip the device.
func masterBus(s config.Settings) *effects.Chain {
	bus := effects.NewChain()
	if s.Audio.ReverbMix > 0 {
		bus.Add(effects.NewReverb(s.Audio.SampleRate, 0.6, 0.72, float32(s.Audio.ReverbMix)))
	}
	bus.Add(effects.NewLimiter(s.Audio.SampleRate, 0.95, 0.1, 60))
	return bus
}

// Player ties the scheduler, the instruments and the audio device into a
// falling-notes piano. Drive it from a game loop: call Advance once per
// update and draw the returned frame.
type Player struct {
	mu       sync.Mutex
	settings config.Settings
	eng      *engine.Engine
	cad      *engine.Cadence
	syn      *synth.Engine
	smp      *sampler.Engine // nil without a sample kit
	kit      *sampler.Kit
	audio    *intaudio.Player // nil until Play needs the device
	clock    func() float64   // overrides the device clock when set

	synthGain   float64
	samplerGain float64
	volume      float64
	title       string
	boost       bool

	frame Frame

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewPlayer(opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.settings.Validate(); err != nil {
		return nil, err
	}
	s := cfg.settings

	p := &Player{
		settings:    s,
		clock:       cfg.clock,
		synthGain:   s.Audio.MasterGain,
		samplerGain: sampler.DefaultParams().MasterGain,
		volume:      1,
	}
	p.eng = engine.New(engine.Config{
		ApproachSeconds: s.Display.ApproachSeconds,
		MinLitSeconds:   s.Display.MinLitSeconds,
		StopTailSeconds: s.Playback.StopTailSeconds,
		ViewHeight:      float64(s.Display.Height),
		TriggerY:        s.Display.TriggerRatio * float64(s.Display.Height),
	}, engine.Options{
		OnTrigger: p.dispatchTrigger,
		OnEvent:   p.relayEngineEvent,
	})
	p.eng.SetLoop(s.Playback.Loop)
	p.cad = engine.NewCadence(s.Cadence.SlowSeconds, s.Cadence.MediumSeconds, s.Cadence.FewNotes, s.Cadence.BoostSeconds)

	sp := synth.DefaultParams()
	sp.MasterGain = s.Audio.MasterGain
	p.syn = synth.New(s.Audio.SampleRate, sp)

	dir := cfg.sampleDir
	if dir == "" {
		dir = s.Audio.SampleDir
	}
	if dir != "" {
		p.kit = sampler.LoadKit(dir)
		p.smp = sampler.New(s.Audio.SampleRate, p.kit, sampler.DefaultParams())
	}

	if s.Playback.Rate != 1 {
		if err := p.eng.SetRate(0, s.Playback.Rate); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// dispatchTrigger routes a landed note to the sample kit when it is
// loaded, otherwise to the synthesizer.
func (p *Player) dispatchTrigger(n song.Note, durSeconds, velocity float64) {
	if p.smp != nil && p.smp.Ready() {
		p.smp.Trigger(n.Pitch, durSeconds, velocity)
		return
	}
	p.syn.Trigger(n.Pitch, durSeconds, velocity)
}

func (p *Player) relayEngineEvent(k engine.EventKind) {
	var kind EventKind
	switch k {
	case engine.EventLooped:
		kind = EventLooped
	case engine.EventRepeatWrapped:
		kind = EventRepeatWrapped
	case engine.EventEnded:
		kind = EventEnded
	default:
		return
	}
	p.sendEvent(PlaybackEvent{Kind: kind, Time: p.eng.Position()})
}

// LoadFile loads a standard MIDI file and readies it at position zero.
func (p *Player) LoadFile(path string) error {
	sng, err := midifile.Load(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadNotes(sng.Title, sng.Notes, sng.Duration)
	return nil
}

// Load loads a song from any source.
func (p *Player) Load(src NoteSource) error {
	notes := src.Notes()
	if len(notes) == 0 {
		return errors.New("song has no notes")
	}
	converted := make([]song.Note, len(notes))
	for i, n := range notes {
		converted[i] = song.Note{Pitch: n.Pitch, Start: n.Start, End: n.End, Velocity: n.Velocity}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadNotes(src.Title(), converted, src.Duration())
	return nil
}

func (p *Player) loadNotes(title string, notes []song.Note, duration float64) {
	p.eng.Load(song.BuildIndex(notes), duration)
	p.title = title
	p.releaseInstruments()
	p.boost = true
	p.sendEvent(PlaybackEvent{Kind: EventLoaded})
}

// Play starts or resumes playback. The audio device is opened on first
// use unless a custom clock drives the player.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureAudio(); err != nil {
		return err
	}
	// Play from rest at the end of the song starts over from the top.
	if p.eng.Ended() {
		p.eng.Seek(p.now(), 0)
	}
	if !p.eng.Start(p.now()) {
		return errors.New("no song loaded")
	}
	p.boost = true
	p.sendEvent(PlaybackEvent{Kind: EventStarted, Time: p.eng.Position()})
	return nil
}

// Pause freezes playback in place; sounding notes ring out. Resuming
// continues exactly where the picture stopped.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.eng.Playing() {
		return
	}
	pos := p.eng.Pause(p.now())
	p.releaseInstruments()
	p.boost = true
	p.sendEvent(PlaybackEvent{Kind: EventPaused, Time: pos})
}

// TogglePlay pauses when playing, plays otherwise.
func (p *Player) TogglePlay() error {
	p.mu.Lock()
	playing := p.eng.Playing()
	p.mu.Unlock()
	if playing {
		p.Pause()
		return nil
	}
	return p.Play()
}

// Stop halts playback and rewinds to the top.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eng.Stop()
	p.releaseInstruments()
	p.boost = true
	p.sendEvent(PlaybackEvent{Kind: EventStopped})
}

// Seek jumps to target seconds, clamped to the song bounds.
func (p *Player) Seek(target float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekLocked(target)
}

// SeekBy nudges the position by delta seconds.
func (p *Player) SeekBy(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekLocked(p.eng.Position() + delta)
}

func (p *Player) seekLocked(target float64) {
	pos := p.eng.Seek(p.now(), target)
	p.releaseInstruments()
	p.boost = true
	p.sendEvent(PlaybackEvent{Kind: EventSeeked, Time: pos})
}

// SetRate sets the playback speed, clamped to the configured window, and
// returns the applied rate. Position is preserved.
func (p *Player) SetRate(rate float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate < p.settings.Playback.RateMin {
		rate = p.settings.Playback.RateMin
	}
	if rate > p.settings.Playback.RateMax {
		rate = p.settings.Playback.RateMax
	}
	if err := p.eng.SetRate(p.now(), rate); err != nil {
		return p.eng.Rate()
	}
	p.boost = true
	p.sendEvent(PlaybackEvent{Kind: EventRateChanged, Time: p.eng.Position()})
	return rate
}

func (p *Player) SetLoop(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eng.SetLoop(on)
}

func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.Loop()
}

// SetRepeatStart marks the current position as repeat point A.
func (p *Player) SetRepeatStart() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.eng.Position()
	p.eng.Repeat().SetA(pos)
	return pos
}

// SetRepeatEnd marks the current position as repeat point B and enables
// the range. It fails with ErrInvalidRange when the position does not lie
// after point A; the stored range is left untouched.
func (p *Player) SetRepeatEnd() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.eng.Position()
	if err := p.eng.Repeat().SetB(pos); err != nil {
		return pos, err
	}
	p.eng.Repeat().Enable(true)
	return pos, nil
}

// SetRepeatRange places both points at once and enables the range.
func (p *Player) SetRepeatRange(a, b float64) error {
	if b <= a {
		return ErrInvalidRange
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rep := p.eng.Repeat()
	rep.SetA(a)
	if err := rep.SetB(b); err != nil {
		return err
	}
	rep.Enable(true)
	return nil
}

func (p *Player) EnableRepeat(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eng.Repeat().Enable(on)
}

func (p *Player) ClearRepeat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eng.Repeat().Clear()
}

// RepeatRange reports the A-B points and whether wrapping is active.
func (p *Player) RepeatRange() (a, b float64, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rep := p.eng.Repeat()
	a, _ = rep.A()
	b, _ = rep.B()
	return a, b, rep.Active()
}

// Advance runs one animation frame at wallNow seconds and returns the
// frame to draw, or nil when the render cadence says the previous picture
// is still fresh. Timing always advances; only drawing is skipped.
func (p *Player) Advance(wallNow float64) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.boost {
		p.cad.Boost(wallNow)
		p.boost = false
	}
	ef := p.eng.Tick(p.now(), wallNow)
	if ef.Looped || ef.Wrapped || ef.Ended {
		p.cad.Boost(wallNow)
	}
	p.cad.Observe(len(ef.Visible), ef.NearLine)
	if !p.cad.ShouldRender(wallNow) {
		return nil
	}
	return p.publishFrame(ef)
}

func (p *Player) publishFrame(ef *engine.Frame) *Frame {
	f := &p.frame
	f.Time = ef.VirtualTime
	f.Duration = ef.Duration
	f.Rate = ef.Rate
	f.Playing = ef.Playing
	f.Looped = ef.Looped
	f.Wrapped = ef.Wrapped
	f.Ended = ef.Ended
	f.NearLine = ef.NearLine
	f.Triggered = f.Triggered[:0]
	for _, n := range ef.Triggered {
		f.Triggered = append(f.Triggered, publicNote(n))
	}
	f.Visible = f.Visible[:0]
	for _, b := range ef.Visible {
		f.Visible = append(f.Visible, NoteBox{
			ID:      b.Note.ID,
			Note:    publicNote(b.Note),
			TopY:    b.TopY,
			BottomY: b.BottomY,
			Lit:     b.Lit,
		})
	}
	return f
}

func publicNote(n song.Note) Note {
	return Note{Pitch: n.Pitch, Start: n.Start, End: n.End, Velocity: n.Velocity}
}

// SetViewport tells the scheduler the drawing size: viewHeight is the
// viewport height in pixels and triggerY the trigger line's y.
func (p *Player) SetViewport(viewHeight, triggerY float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eng.SetViewport(viewHeight, triggerY)
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.Playing()
}

func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.Position()
}

func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.Rate()
}

func (p *Player) SongDuration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.SongDuration()
}

func (p *Player) SongTitle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *Player) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.SongDuration() > 0
}

// SamplesReady reports whether the piano sample kit has finished loading.
func (p *Player) SamplesReady() bool {
	return p.smp != nil && p.smp.Ready()
}

// SampleKitErr returns the kit load failure, if any.
func (p *Player) SampleKitErr() error {
	if p.kit == nil {
		return nil
	}
	return p.kit.Err()
}

// ActiveVoices counts currently sounding instrument voices.
func (p *Player) ActiveVoices() int {
	n := p.syn.ActiveVoiceCount()
	if p.smp != nil {
		n += p.smp.ActiveVoiceCount()
	}
	return n
}

func (p *Player) TriggerFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.TriggerFailures()
}

func (p *Player) ClockAnomalies() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eng.ClockAnomalies()
}

// Latency reports how far the generated stream runs ahead of what the
// listener hears, in seconds. Zero without an audio device.
func (p *Player) Latency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return 0
	}
	return p.audio.Now() - p.audio.Position().Seconds()
}

// SetMasterVolume sets the runtime volume scalar. 1 is the configured
// gain.
func (p *Player) SetMasterVolume(v float64) {
	if v < 0 {
		v = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	p.syn.SetMasterGain(p.synthGain * v)
	if p.smp != nil {
		p.smp.SetMasterGain(p.samplerGain * v)
	}
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Watch returns a channel that receives playback events: transport
// changes, loop and repeat wraps, and the natural end of the song.
// The channel is buffered (cap 8) and events are dropped when it is
// full; receive in a goroutine. Only the most recent Watch() channel
// receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Close releases the audio device.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	return err
}

func (p *Player) ensureAudio() error {
	if p.clock != nil || p.audio != nil {
		return nil
	}
	mix := &mixSource{a: p.syn, bus: masterBus(p.settings)}
	if p.smp != nil {
		mix.b = p.smp
	}
	backend, err := intaudio.NewPlayer(p.settings.Audio.SampleRate, mix)
	if err != nil {
		return err
	}
	p.audio = backend
	p.audio.Play()
	return nil
}

// now reads the playback clock: the custom clock when set, else the audio
// device, else zero before the device exists.
func (p *Player) now() float64 {
	if p.clock != nil {
		return p.clock()
	}
	if p.audio != nil {
		return p.audio.Now()
	}
	return 0
}

func (p *Player) releaseInstruments() {
	p.syn.ReleaseAll()
	if p.smp != nil {
		p.smp.ReleaseAll()
	}
}
