package effects

import (
	"math"
	"testing"
)

// stereo block of n frames, silent.
func silence(n int) []float32 { return make([]float32, n*2) }

func TestReverbRingsOutAfterImpulse(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0.5)
	buf := silence(4410) // 100ms
	buf[0], buf[1] = 1, 1
	r.Apply(buf)

	// Shortest comb line is sampleRate*0.5*0.05 = 1102 samples; the tail
	// must appear after that.
	var maxOut float32
	for frame := 1103; frame < 4410; frame++ {
		if v := abs32(buf[frame*2]); v > maxOut {
			maxOut = v
		}
	}
	if maxOut < 0.001 {
		t.Errorf("expected a reverb tail after the comb delay, max %f", maxOut)
	}
}

func TestReverbKeepsSilenceSilent(t *testing.T) {
	r := NewReverb(44100, 0.6, 0.75, 0.5)
	buf := silence(2048)
	r.Apply(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("silent input produced output %f at %d", v, i)
		}
	}
}

func TestReverbZeroWetBypasses(t *testing.T) {
	r := NewReverb(44100, 0.6, 0.75, 0)
	buf := silence(64)
	buf[10], buf[11] = 0.5, -0.5
	r.Apply(buf)
	if buf[10] != 0.5 || buf[11] != -0.5 {
		t.Errorf("zero wet should pass input through, got %f, %f", buf[10], buf[11])
	}
}

func TestLimiterCapsSustainedPeaks(t *testing.T) {
	l := NewLimiter(44100, 0.9, 0.1, 50)
	buf := silence(4410)
	for i := range buf {
		buf[i] = 2
	}
	l.Apply(buf)
	out := float64(buf[len(buf)-2])
	if out > 0.95 {
		t.Errorf("limiter should hold a sustained 2.0 under the ceiling, got %f", out)
	}
	if out < 0.8 {
		t.Errorf("limiter reduced too far, got %f", out)
	}
}

func TestLimiterPassesQuietSignal(t *testing.T) {
	l := NewLimiter(44100, 0.9, 0.1, 50)
	buf := silence(1024)
	for i := range buf {
		buf[i] = 0.3
	}
	l.Apply(buf)
	if got := float64(buf[len(buf)-2]); math.Abs(got-0.3) > 1e-4 {
		t.Errorf("signal under the ceiling should pass unchanged, got %f", got)
	}
}

func TestChainResetClearsTails(t *testing.T) {
	c := NewChain(
		NewReverb(44100, 0.5, 0.9, 0.5),
		NewLimiter(44100, 0.95, 0.1, 50),
	)
	buf := silence(4410)
	buf[0], buf[1] = 1, 1
	c.Apply(buf)

	c.Reset()
	quiet := silence(4410)
	c.Apply(quiet)
	for i, v := range quiet {
		if v != 0 {
			t.Fatalf("reset chain still rang at %d: %f", i, v)
		}
	}
}
