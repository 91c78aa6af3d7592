package engine

// regressionSlack separates audio-clock quantization jitter from a genuine
// device reset. Backward steps inside the slack are clamped; beyond it the
// new reading is accepted and reported so the caller can re-anchor.
const regressionSlack = 0.25

// maxExtrapolation caps how far the wall clock may run ahead of a stalled
// audio clock (device underrun) before the smoothed time waits for it.
const maxExtrapolation = 0.25

// timebase smooths the audio clock to animation-frame granularity. The
// device clock advances in buffer-sized quanta; between quanta the wall
// clock fills in, and jitter never runs the result backwards.
type timebase struct {
	primed   bool
	lastRaw  float64
	lastWall float64
	lastOut  float64
}

func (tb *timebase) sample(raw, wall float64, advancing bool) (out float64, regressed bool) {
	if !tb.primed {
		tb.primed = true
		tb.lastRaw, tb.lastWall, tb.lastOut = raw, wall, raw
		return raw, false
	}
	if raw < tb.lastRaw-regressionSlack {
		tb.lastRaw, tb.lastWall, tb.lastOut = raw, wall, raw
		return raw, true
	}
	out = raw
	if advancing {
		if raw == tb.lastRaw {
			out = tb.lastOut + (wall - tb.lastWall)
			if out > raw+maxExtrapolation {
				out = raw + maxExtrapolation
			}
		}
		if out < tb.lastOut {
			out = tb.lastOut
		}
	}
	tb.lastRaw = raw
	tb.lastWall = wall
	tb.lastOut = out
	return out, false
}

func (tb *timebase) reset() {
	tb.primed = false
}
