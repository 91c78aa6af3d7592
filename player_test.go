package fallingnotes

import (
	"errors"
	"math"
	"testing"

	"github.com/kobeyabkk/falling-notes-piano/internal/config"
)

type fakeClock struct {
	now float64
}

func (c *fakeClock) read() float64 { return c.now }

type sliceSource struct {
	title    string
	notes    []Note
	duration float64
}

func (s sliceSource) Title() string     { return s.title }
func (s sliceSource) Notes() []Note     { return s.notes }
func (s sliceSource) Duration() float64 { return s.duration }

// testSettings disables the render cadence so every Advance returns a
// frame.
func testSettings() config.Settings {
	s := config.Default()
	s.Cadence.SlowSeconds = 0
	s.Cadence.MediumSeconds = 0
	s.Cadence.BoostSeconds = 0
	return s
}

func newTestPlayer(t *testing.T, clk *fakeClock) *Player {
	t.Helper()
	p, err := NewPlayer(WithSettings(testSettings()), WithClock(clk.read))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	return p
}

func loadTestSong(t *testing.T, p *Player, duration float64, notes ...Note) {
	t.Helper()
	if err := p.Load(sliceSource{title: "test", notes: notes, duration: duration}); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

// drive steps the clock to the target in 1/60 s increments, calling
// Advance at each step, and returns the last rendered frame.
func drive(p *Player, clk *fakeClock, to float64) *Frame {
	var last *Frame
	for clk.now < to {
		clk.now += 1.0 / 60
		if f := p.Advance(clk.now); f != nil {
			last = f
		}
	}
	return last
}

func drainEvents(ch <-chan PlaybackEvent) []EventKind {
	var kinds []EventKind
	for {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func hasKind(kinds []EventKind, want EventKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func TestPlayerPlayRequiresSong(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	if err := p.Play(); err == nil {
		t.Fatal("Play with no song loaded should fail")
	}
}

func TestPlayerLoadRejectsEmptySource(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	if err := p.Load(sliceSource{title: "empty"}); err == nil {
		t.Fatal("Load with no notes should fail")
	}
}

func TestPlayerTriggersNoteAtItsStartTime(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 2, Note{Pitch: 60, Start: 0.5, End: 1.0, Velocity: 0.8})

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	drive(p, clk, 0.4)
	if got := p.ActiveVoices(); got != 0 {
		t.Fatalf("voices before the note's start: got %d, want 0", got)
	}
	drive(p, clk, 0.6)
	if got := p.ActiveVoices(); got == 0 {
		t.Fatal("note crossed the trigger line but no voice is sounding")
	}
	if got := p.TriggerFailures(); got != 0 {
		t.Fatalf("trigger failures: got %d, want 0", got)
	}
}

func TestPlayerFrameGeometry(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 2, Note{Pitch: 60, Start: 1.0, End: 1.5, Velocity: 0.8})

	f := p.Advance(0)
	if f == nil {
		t.Fatal("first Advance returned no frame")
	}
	if len(f.Visible) != 1 {
		t.Fatalf("visible notes: got %d, want 1", len(f.Visible))
	}
	box := f.Visible[0]
	if box.Note.Pitch != 60 {
		t.Fatalf("visible pitch: got %d, want 60", box.Note.Pitch)
	}
	if box.TopY >= box.BottomY {
		t.Fatalf("note box inverted: top %.1f, bottom %.1f", box.TopY, box.BottomY)
	}
	if box.Lit {
		t.Fatal("note lit before it was played")
	}
}

func TestPlayerPauseFreezesAndResumeContinues(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 10, Note{Pitch: 60, Start: 0.2, End: 0.4, Velocity: 0.8})

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	drive(p, clk, 1.0)
	p.Pause()
	held := p.Position()
	if p.Playing() {
		t.Fatal("still playing after Pause")
	}

	clk.now = 5
	p.Advance(clk.now)
	if got := p.Position(); math.Abs(got-held) > 1e-6 {
		t.Fatalf("position moved while paused: got %.4f, want %.4f", got, held)
	}

	if err := p.Play(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clk.now = 5.5
	p.Advance(clk.now)
	if got := p.Position(); math.Abs(got-(held+0.5)) > 1e-6 {
		t.Fatalf("position after resume: got %.4f, want %.4f", got, held+0.5)
	}
}

func TestPlayerStopRewindsToTop(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 10, Note{Pitch: 60, Start: 0.2, End: 0.4, Velocity: 0.8})

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	drive(p, clk, 1.0)
	p.Stop()
	if p.Playing() {
		t.Fatal("still playing after Stop")
	}
	if got := p.Position(); got != 0 {
		t.Fatalf("position after Stop: got %.4f, want 0", got)
	}
}

func TestPlayerSeekClampsToSongBounds(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 2, Note{Pitch: 60, Start: 0.5, End: 1.0, Velocity: 0.8})

	p.Seek(-5)
	if got := p.Position(); got != 0 {
		t.Fatalf("seek before the top: got %.4f, want 0", got)
	}
	p.Seek(1e9)
	if got := p.Position(); got != 2 {
		t.Fatalf("seek past the end should clamp to the song duration: got %.4f, want 2", got)
	}
}

func TestPlayerRateClampedToConfiguredWindow(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 2, Note{Pitch: 60, Start: 0.5, End: 1.0, Velocity: 0.8})

	if got := p.SetRate(10); got != testSettings().Playback.RateMax {
		t.Fatalf("rate above the window: got %.2f, want %.2f", got, testSettings().Playback.RateMax)
	}
	if got := p.SetRate(0.01); got != testSettings().Playback.RateMin {
		t.Fatalf("rate below the window: got %.2f, want %.2f", got, testSettings().Playback.RateMin)
	}
	if got := p.Rate(); got != testSettings().Playback.RateMin {
		t.Fatalf("Rate after clamp: got %.2f, want %.2f", got, testSettings().Playback.RateMin)
	}
}

func TestPlayerRepeatRange(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 4, Note{Pitch: 60, Start: 0.6, End: 0.8, Velocity: 0.8})

	if err := p.SetRepeatRange(2, 1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("inverted range: got %v, want ErrInvalidRange", err)
	}
	if err := p.SetRepeatRange(0.5, 1.0); err != nil {
		t.Fatalf("SetRepeatRange: %v", err)
	}
	a, b, active := p.RepeatRange()
	if a != 0.5 || b != 1.0 || !active {
		t.Fatalf("repeat range: got %.2f..%.2f active=%v, want 0.50..1.00 active=true", a, b, active)
	}
	p.ClearRepeat()
	if _, _, active := p.RepeatRange(); active {
		t.Fatal("repeat still active after ClearRepeat")
	}
}

func TestPlayerRepeatWrapEmitsEvent(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 4, Note{Pitch: 60, Start: 0.6, End: 0.8, Velocity: 0.8})

	ch := p.Watch()
	if err := p.SetRepeatRange(0.5, 1.0); err != nil {
		t.Fatalf("SetRepeatRange: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	drive(p, clk, 1.2)

	kinds := drainEvents(ch)
	if !hasKind(kinds, EventRepeatWrapped) {
		t.Fatalf("events %v do not include a repeat wrap", kinds)
	}
	if got := p.Position(); got < 0.5 || got >= 1.0 {
		t.Fatalf("position after wrap: got %.4f, want within 0.5..1.0", got)
	}
}

func TestPlayerNaturalEndRestsThenPlayRestarts(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 0.3, Note{Pitch: 60, Start: 0.1, End: 0.2, Velocity: 0.8})

	ch := p.Watch()
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	drive(p, clk, 2.0)

	kinds := drainEvents(ch)
	if !hasKind(kinds, EventEnded) {
		t.Fatalf("events %v do not include the natural end", kinds)
	}
	if p.Playing() {
		t.Fatal("still playing after the song ended")
	}
	// The position rests where the song ran out; it does not rewind.
	if got := p.Position(); got < p.SongDuration() {
		t.Fatalf("position after the end: got %.4f, want at least the duration %.4f", got, p.SongDuration())
	}

	// Pressing play again starts over from the top.
	if err := p.Play(); err != nil {
		t.Fatalf("Play after end: %v", err)
	}
	if got := p.Position(); got != 0 {
		t.Fatalf("position after replay: got %.4f, want 0", got)
	}
	if !p.Playing() {
		t.Fatal("replay should be playing")
	}
}

func TestPlayerWatchReceivesTransportEvents(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	ch := p.Watch()

	loadTestSong(t, p, 2, Note{Pitch: 60, Start: 0.5, End: 1.0, Velocity: 0.8})
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clk.now = 0.2
	p.Pause()
	p.Stop()

	want := []EventKind{EventLoaded, EventStarted, EventPaused, EventStopped}
	got := drainEvents(ch)
	if len(got) != len(want) {
		t.Fatalf("event count: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPlayerQuietSceneSkipsRenders(t *testing.T) {
	clk := &fakeClock{}
	s := config.Default()
	s.Cadence.SlowSeconds = 10
	s.Cadence.MediumSeconds = 10
	s.Cadence.BoostSeconds = 0.05
	p, err := NewPlayer(WithSettings(s), WithClock(clk.read))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	loadTestSong(t, p, 60, Note{Pitch: 60, Start: 50, End: 51, Velocity: 0.8})

	if f := p.Advance(0); f == nil {
		t.Fatal("first Advance should render")
	}
	// Past the load boost window, an empty scene renders at the slow
	// interval only.
	if f := p.Advance(0.1); f != nil {
		t.Fatal("empty scene re-rendered before the slow interval elapsed")
	}
	// A transport command forces the next frame out immediately.
	p.Seek(1)
	if f := p.Advance(0.2); f == nil {
		t.Fatal("Advance after Seek should render")
	}
}

func TestPlayerMasterVolume(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)

	p.SetMasterVolume(0.5)
	if got := p.MasterVolume(); got != 0.5 {
		t.Fatalf("master volume: got %.2f, want 0.5", got)
	}
	p.SetMasterVolume(-1)
	if got := p.MasterVolume(); got != 0 {
		t.Fatalf("negative volume should clamp to 0, got %.2f", got)
	}
}

func TestPlayerTogglePlay(t *testing.T) {
	clk := &fakeClock{}
	p := newTestPlayer(t, clk)
	loadTestSong(t, p, 2, Note{Pitch: 60, Start: 0.5, End: 1.0, Velocity: 0.8})

	if err := p.TogglePlay(); err != nil {
		t.Fatalf("toggle to play: %v", err)
	}
	if !p.Playing() {
		t.Fatal("not playing after first toggle")
	}
	if err := p.TogglePlay(); err != nil {
		t.Fatalf("toggle to pause: %v", err)
	}
	if p.Playing() {
		t.Fatal("still playing after second toggle")
	}
}
