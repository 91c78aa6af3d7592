package synth

import (
	"math"
	"testing"
)

func renderBlock(e *Engine, frames int) []float32 {
	buf := make([]float32, frames*2)
	e.Process(buf)
	return buf
}

func sumAbs(buf []float32) float64 {
	var s float64
	for _, v := range buf {
		s += math.Abs(float64(v))
	}
	return s
}

func TestEngineGeneratesSignal(t *testing.T) {
	e := New(48000, DefaultParams())
	e.Trigger(60, 1, 0.8)
	buf := renderBlock(e, 5000)
	if sumAbs(buf) == 0 {
		t.Fatal("expected non-zero output")
	}
}

func TestSilentWhenIdle(t *testing.T) {
	e := New(48000, DefaultParams())
	buf := renderBlock(e, 1024)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("idle engine produced %v at sample %d", v, i)
		}
	}
}

func TestLowKeysSoundLeft(t *testing.T) {
	e := New(48000, DefaultParams())
	e.Trigger(24, 1, 1)
	var left, right float64
	buf := renderBlock(e, 4096)
	for i := 0; i+1 < len(buf); i += 2 {
		left += math.Abs(float64(buf[i]))
		right += math.Abs(float64(buf[i+1]))
	}
	if left <= right {
		t.Fatalf("expected left-biased signal for a bass key, left=%f right=%f", left, right)
	}

	e = New(48000, DefaultParams())
	e.Trigger(103, 1, 1)
	left, right = 0, 0
	buf = renderBlock(e, 4096)
	for i := 0; i+1 < len(buf); i += 2 {
		left += math.Abs(float64(buf[i]))
		right += math.Abs(float64(buf[i+1]))
	}
	if right <= left {
		t.Fatalf("expected right-biased signal for a treble key, left=%f right=%f", left, right)
	}
}

func TestScheduledReleaseSilencesVoice(t *testing.T) {
	e := New(48000, DefaultParams())
	e.Trigger(60, 0.05, 1)
	// 0.05s sounding plus the release tail is well under 8192 frames.
	renderBlock(e, 8192)
	if n := e.ActiveVoiceCount(); n != 0 {
		t.Fatalf("active voices after scheduled release: got %d, want 0", n)
	}
	if s := sumAbs(renderBlock(e, 1024)); s != 0 {
		t.Fatalf("expected silence after release, got energy %f", s)
	}
}

func TestReleaseAllSilencesEverything(t *testing.T) {
	e := New(48000, DefaultParams())
	e.Trigger(48, 10, 1)
	e.Trigger(60, 10, 1)
	e.Trigger(72, 10, 1)
	renderBlock(e, 1024)
	e.ReleaseAll()
	// The release window is 0.06s = 2880 frames.
	renderBlock(e, 4096)
	if n := e.ActiveVoiceCount(); n != 0 {
		t.Fatalf("active voices after ReleaseAll: got %d, want 0", n)
	}
}

func TestVoiceStealingBoundsPolyphony(t *testing.T) {
	p := DefaultParams()
	p.Voices = 4
	e := New(48000, p)
	for pitch := 60; pitch < 68; pitch++ {
		e.Trigger(pitch, 5, 1)
	}
	if n := e.ActiveVoiceCount(); n != 4 {
		t.Fatalf("active voices: got %d, want 4", n)
	}
	if sumAbs(renderBlock(e, 2048)) == 0 {
		t.Fatal("stolen voices must keep producing signal")
	}
}

func TestVelocityShapesLoudness(t *testing.T) {
	soft := New(48000, DefaultParams())
	soft.Trigger(60, 1, 0.2)
	hard := New(48000, DefaultParams())
	hard.Trigger(60, 1, 1)
	softEnergy := sumAbs(renderBlock(soft, 4800))
	hardEnergy := sumAbs(renderBlock(hard, 4800))
	if hardEnergy <= softEnergy {
		t.Fatalf("expected velocity to raise loudness, soft=%f hard=%f", softEnergy, hardEnergy)
	}
}

func TestHighNotesDecayFaster(t *testing.T) {
	low := New(48000, DefaultParams())
	low.Trigger(36, 2, 1)
	high := New(48000, DefaultParams())
	high.Trigger(96, 2, 1)

	// Skip the first second, then compare the ring that is left.
	renderBlock(low, 48000)
	renderBlock(high, 48000)
	lowTail := sumAbs(renderBlock(low, 24000))
	highTail := sumAbs(renderBlock(high, 24000))
	if lowTail <= highTail*1.5 {
		t.Fatalf("expected bass to outring treble, low=%f high=%f", lowTail, highTail)
	}
}

func TestOutputStaysInRange(t *testing.T) {
	p := DefaultParams()
	p.MasterGain = 1
	e := New(48000, p)
	for i := 0; i < 12; i++ {
		e.Trigger(48+i, 2, 1)
	}
	buf := renderBlock(e, 8192)
	for i, v := range buf {
		if v < -1 || v > 1 {
			t.Fatalf("sample %d out of range: %v", i, v)
		}
	}
}

func TestMasterGainScalesOutput(t *testing.T) {
	loud := New(48000, DefaultParams())
	loud.Trigger(60, 1, 1)
	quiet := New(48000, DefaultParams())
	quiet.SetMasterGain(0.01)
	quiet.Trigger(60, 1, 1)
	if l, q := sumAbs(renderBlock(loud, 4096)), sumAbs(renderBlock(quiet, 4096)); q >= l {
		t.Fatalf("expected gain to scale output, loud=%f quiet=%f", l, q)
	}
}
