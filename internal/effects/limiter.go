package effects

import "math"

// Limiter keeps the bus under a fixed ceiling. A stereo-linked peak
// envelope with fast attack and slow release drives the gain so that a
// dense chord does not clip while quiet passages pass through untouched.
type Limiter struct {
	ceiling float32
	attack  float32
	release float32
	env     float32
}

// NewLimiter builds a limiter.
// ceiling: linear output ceiling, e.g. 0.95.
// attackMs/releaseMs: envelope time constants in milliseconds.
func NewLimiter(sampleRate int, ceiling, attackMs, releaseMs float32) *Limiter {
	if ceiling <= 0 {
		ceiling = 0.95
	}
	return &Limiter{
		ceiling: ceiling,
		attack:  envCoeff(sampleRate, attackMs),
		release: envCoeff(sampleRate, releaseMs),
	}
}

func envCoeff(sampleRate int, ms float32) float32 {
	if ms <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1.0/(float64(ms)*float64(sampleRate)/1000)))
}

func (l *Limiter) Apply(dst []float32) {
	for i := 0; i+1 < len(dst); i += 2 {
		peak := abs32(dst[i])
		if p := abs32(dst[i+1]); p > peak {
			peak = p
		}
		if peak > l.env {
			l.env += l.attack * (peak - l.env)
		} else {
			l.env += l.release * (peak - l.env)
		}
		gain := float32(1)
		if l.env > l.ceiling {
			gain = l.ceiling / l.env
		}
		dst[i] *= gain
		dst[i+1] *= gain
	}
}

func (l *Limiter) Reset() { l.env = 0 }

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
