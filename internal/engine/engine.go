// Package engine drives falling-note playback. Each animation frame it
// derives the playback position from the audio clock, wraps the A-B
// repeat range, decides which notes land on the trigger line and fires
// their sounds, handles end-of-song loop or stop, and assembles the
// frame's render state.
package engine

import (
	"fmt"

	"github.com/kobeyabkk/falling-notes-piano/internal/clock"
	"github.com/kobeyabkk/falling-notes-piano/internal/song"
)

// EventKind identifies playback events the tick loop discovers on its own.
// Transport commands report their own outcomes to the caller directly.
type EventKind int

const (
	EventLooped EventKind = iota
	EventRepeatWrapped
	EventEnded
)

// Config holds the scheduler's timing and geometry policy. Zero fields
// take the defaults below.
type Config struct {
	ApproachSeconds float64 // fall time from spawn (y=0) to the trigger line
	MinLitSeconds   float64 // floor for a landed note's highlight window
	StopTailSeconds float64 // silence allowed past the last note before stopping
	NearLineSeconds float64 // "about to land" horizon for the cadence metric
	Epsilon         float64 // end-of-song comparison slack
	ViewHeight      float64 // viewport height, pixels
	TriggerY        float64 // trigger line y, pixels from the top
}

func DefaultConfig() Config {
	return Config{
		ApproachSeconds: 3,
		MinLitSeconds:   0.1,
		StopTailSeconds: 1.5,
		NearLineSeconds: 0.5,
		Epsilon:         1.0 / 60.0,
		ViewHeight:      720,
		TriggerY:        560,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ApproachSeconds <= 0 {
		c.ApproachSeconds = d.ApproachSeconds
	}
	if c.MinLitSeconds <= 0 {
		c.MinLitSeconds = d.MinLitSeconds
	}
	if c.StopTailSeconds <= 0 {
		c.StopTailSeconds = d.StopTailSeconds
	}
	if c.NearLineSeconds <= 0 {
		c.NearLineSeconds = d.NearLineSeconds
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.ViewHeight <= 0 {
		c.ViewHeight = d.ViewHeight
	}
	if c.TriggerY <= 0 || c.TriggerY >= c.ViewHeight {
		c.TriggerY = c.ViewHeight * (d.TriggerY / d.ViewHeight)
	}
	return c
}

// Options wire an Engine to its collaborators.
type Options struct {
	// OnTrigger dispatches a landed note to the instrument. The duration
	// is already scaled by the playback rate. Panics are recovered,
	// counted, and reported through OnError; playback continues.
	OnTrigger func(n song.Note, durSeconds, velocity float64)
	OnEvent   func(EventKind)
	OnError   func(error)
}

// NoteBox is one visible note with its screen-space vertical geometry.
// The on-edge (BottomY) reaches the trigger line at the note's start, the
// off-edge (TopY) at its end; a long note may extend above the viewport.
type NoteBox struct {
	Note    song.Note
	TopY    float64
	BottomY float64
	Lit     bool
}

// Frame is the outcome of one tick: everything a renderer and the cadence
// policy need. Slices alias engine-owned buffers valid until the next
// Tick.
type Frame struct {
	VirtualTime float64
	Duration    float64
	Rate        float64
	Playing     bool
	Looped      bool // this tick wrapped to the song start
	Wrapped     bool // this tick wrapped to repeat point A
	Ended       bool // this tick hard-stopped playback
	Triggered   []song.Note
	Visible     []NoteBox
	NearLine    int
}

// Engine is the playback scheduler. It is not safe for concurrent use;
// the owner serializes transport calls and ticks (single game loop).
type Engine struct {
	cfg Config
	idx *song.Index
	clk *clock.Virtual
	det *Detector
	rep *Repeat
	tb  timebase

	songDuration float64
	loop         bool
	armed        bool // tick loop live; cleared by Stop and natural end
	ended        bool // at rest where the song ran out; cleared by any reposition
	prevVirtual  float64
	lastAudio    float64

	onTrigger func(song.Note, float64, float64)
	onEvent   func(EventKind)
	onError   func(error)

	triggerFailures int
	clockAnomalies  int

	frame     Frame
	triggered []song.Note
	visible   []NoteBox
}

func New(cfg Config, opts Options) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		idx:       song.BuildIndex(nil),
		clk:       clock.New(),
		det:       NewDetector(cfg.MinLitSeconds),
		rep:       &Repeat{},
		onTrigger: opts.OnTrigger,
		onEvent:   opts.OnEvent,
		onError:   opts.OnError,
	}
}

// Load replaces the song. Playback stops, landing state resets, and the
// seek bound moves to the new song's end.
func (e *Engine) Load(idx *song.Index, duration float64) {
	if idx == nil {
		idx = song.BuildIndex(nil)
	}
	if duration < idx.MaxEnd() {
		duration = idx.MaxEnd()
	}
	e.idx = idx
	e.songDuration = duration
	e.det.Size(idx.Len())
	e.clk.Reset()
	e.clk.SetBound(duration)
	e.rep.Clear()
	e.tb.reset()
	e.armed = false
	e.ended = false
	e.prevVirtual = 0
}

// Start begins or resumes playback. With no notes loaded it is a no-op
// and reports false.
func (e *Engine) Start(audioNow float64) bool {
	if e.idx.Empty() {
		return false
	}
	e.clk.Start(audioNow)
	e.prevVirtual = e.clk.Now(audioNow)
	e.armed = true
	e.ended = false
	return true
}

// Pause freezes the clock and returns the frozen position, e.g. for
// releasing sustained sound. Landing state is kept: pause is not an epoch
// boundary.
func (e *Engine) Pause(audioNow float64) float64 {
	if e.idx.Empty() {
		return 0
	}
	return e.clk.Pause(audioNow)
}

// Stop halts the tick loop and rewinds to zero.
func (e *Engine) Stop() {
	e.clk.Reset()
	e.det.Reset()
	e.armed = false
	e.ended = false
	e.prevVirtual = 0
}

// Seek jumps to target (clamped to the song bounds), starting a new
// landing epoch at the target. Whether playback continues is unchanged.
func (e *Engine) Seek(audioNow, target float64) float64 {
	if e.idx.Empty() {
		return 0
	}
	pos := e.clk.Seek(audioNow, target)
	e.det.Reset()
	e.ended = false
	e.prevVirtual = pos
	return pos
}

// SetRate changes the playback speed without moving the position. The
// caller applies any domain clamp; non-positive rates are rejected here.
func (e *Engine) SetRate(audioNow, rate float64) error {
	return e.clk.SetRate(audioNow, rate)
}

func (e *Engine) SetLoop(on bool) { e.loop = on }
func (e *Engine) Loop() bool      { return e.loop }

// Repeat exposes the A-B range controller.
func (e *Engine) Repeat() *Repeat { return e.rep }

// SetViewport updates the screen geometry the tick maps notes into.
func (e *Engine) SetViewport(viewHeight, triggerY float64) {
	if viewHeight <= 0 {
		return
	}
	e.cfg.ViewHeight = viewHeight
	if triggerY <= 0 || triggerY >= viewHeight {
		triggerY = viewHeight * (DefaultConfig().TriggerY / DefaultConfig().ViewHeight)
	}
	e.cfg.TriggerY = triggerY
}

func (e *Engine) Armed() bool   { return e.armed }
func (e *Engine) Playing() bool { return e.armed && e.clk.Running() }

// Ended reports whether playback is at rest where the song ran out. Any
// reposition (start, stop, seek, load) clears it.
func (e *Engine) Ended() bool { return e.ended }

// Position returns the virtual time of the most recent tick or transport
// command.
func (e *Engine) Position() float64 { return e.prevVirtual }

func (e *Engine) Rate() float64         { return e.clk.Rate() }
func (e *Engine) SongDuration() float64 { return e.songDuration }
func (e *Engine) TriggerFailures() int  { return e.triggerFailures }
func (e *Engine) ClockAnomalies() int   { return e.clockAnomalies }

// Tick runs one frame at the given audio-clock and wall-clock readings
// (both seconds) and returns the frame's render state. The returned Frame
// and its slices are reused by the next Tick.
func (e *Engine) Tick(audioNow, wallNow float64) *Frame {
	now, regressed := e.tb.sample(audioNow, wallNow, e.clk.Running())
	if regressed {
		e.clockAnomalies++
		// Re-anchor at the held position using the new reference so
		// playback survives an audio device reset. A frozen clock holds
		// its position on its own.
		if e.clk.Running() {
			held := e.clk.Now(e.lastAudio)
			e.clk.Seek(now, held)
			e.det.Reset()
			e.prevVirtual = held
		}
	}
	e.lastAudio = now

	t := e.clk.Now(now)
	f := &e.frame
	*f = Frame{Triggered: e.triggered[:0], Visible: e.visible[:0]}

	playing := e.armed && e.clk.Running()

	if playing && e.rep.Active() {
		if b, _ := e.rep.B(); t >= b {
			a, _ := e.rep.A()
			t = e.clk.Seek(now, a)
			e.det.Reset()
			e.prevVirtual = t
			f.Wrapped = true
			e.emit(EventRepeatWrapped)
		}
	}

	if playing && t > e.prevVirtual {
		e.scanLandings(t, f)
	}

	if playing && !f.Wrapped && !e.idx.Empty() && t >= e.stopLimit()-e.cfg.Epsilon {
		if e.loop {
			t = e.clk.Seek(now, 0)
			e.det.Reset()
			f.Looped = true
			e.emit(EventLooped)
		} else {
			// The song comes to rest where it ran out; only an explicit
			// Stop rewinds to zero.
			if limit := e.stopLimit(); t > limit {
				t = limit
			}
			e.clk.Halt(t)
			e.det.Reset()
			e.armed = false
			e.ended = true
			f.Ended = true
			e.emit(EventEnded)
		}
	}

	e.collectVisible(t, f)
	f.VirtualTime = t
	f.Duration = e.songDuration
	f.Rate = e.clk.Rate()
	f.Playing = e.armed && e.clk.Running()
	e.prevVirtual = t
	e.triggered = f.Triggered
	e.visible = f.Visible
	return f
}

// stopLimit is where playback naturally ends: the later of the nominal
// song duration and the last trailing edge, plus the stop tail.
func (e *Engine) stopLimit() float64 {
	limit := e.songDuration
	if end := e.idx.MaxEnd(); end > limit {
		limit = end
	}
	return limit + e.cfg.StopTailSeconds
}

// pixelsPerSecond maps song time to vertical screen distance: a note
// spawning at y=0 reaches the trigger line in ApproachSeconds.
func (e *Engine) pixelsPerSecond() float64 {
	return e.cfg.TriggerY / e.cfg.ApproachSeconds
}

// edgeY is the screen y of the horizontal edge representing song time tau
// when the playhead is at t. Future edges sit above the line, past ones
// below.
func (e *Engine) edgeY(tau, t float64) float64 {
	return e.cfg.TriggerY - (tau-t)*e.pixelsPerSecond()
}

// window is the index query range for the playhead at t: ahead to the
// spawn horizon, back far enough that any note still on screen is
// covered.
func (e *Engine) window(t float64) (from, to float64) {
	sink := (e.cfg.ViewHeight - e.cfg.TriggerY) / e.pixelsPerSecond()
	return t - e.idx.MaxDuration() - sink, t + e.cfg.ApproachSeconds
}

func (e *Engine) scanLandings(t float64, f *Frame) {
	from, to := e.window(t)
	rate := e.clk.Rate()
	for _, n := range e.idx.Window(from, to) {
		prevOff := e.edgeY(n.End, e.prevVirtual)
		currOn := e.edgeY(n.Start, t)
		if e.det.CheckAndMark(n, prevOff, currOn, e.cfg.TriggerY, t, rate) {
			e.dispatch(n, rate)
			f.Triggered = append(f.Triggered, n)
		}
	}
}

func (e *Engine) dispatch(n song.Note, rate float64) {
	defer func() {
		if r := recover(); r != nil {
			e.triggerFailures++
			if e.onError != nil {
				e.onError(fmt.Errorf("trigger pitch %d at %.3fs: %v", n.Pitch, n.Start, r))
			}
		}
	}()
	if e.onTrigger != nil {
		e.onTrigger(n, n.Duration()/rate, n.Velocity)
	}
}

func (e *Engine) collectVisible(t float64, f *Frame) {
	from, to := e.window(t)
	for _, n := range e.idx.Window(from, to) {
		top := e.edgeY(n.End, t)
		if top > e.cfg.ViewHeight {
			continue // fully sunk below the viewport
		}
		bottom := e.edgeY(n.Start, t)
		lit := e.det.Lit(n.ID, t)
		f.Visible = append(f.Visible, NoteBox{Note: n, TopY: top, BottomY: bottom, Lit: lit})
		if lit || (n.Start >= t && n.Start-t <= e.cfg.NearLineSeconds) {
			f.NearLine++
		}
	}
}

func (e *Engine) emit(k EventKind) {
	if e.onEvent != nil {
		e.onEvent(k)
	}
}
