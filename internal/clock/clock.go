// Package clock maps an external audio clock onto song time.
package clock

import (
	"fmt"
	"math"
)

// Virtual derives the playback position ("virtual time") from an audio-clock
// reading. It keeps a single anchor pair {refAudio, virtAtRef}; while running,
// virtual time advances from the anchor at the current rate:
//
//	now = virtAtRef + (audioNow - refAudio) * rate
//
// Every transition (start, pause, seek, rate change) re-anchors, so the
// mapping stays continuous except for the explicit jump a seek performs.
type Virtual struct {
	running   bool
	rate      float64
	refAudio  float64
	virtAtRef float64
	bound     float64
}

func New() *Virtual {
	return &Virtual{rate: 1, bound: math.Inf(1)}
}

func (c *Virtual) Running() bool { return c.running }
func (c *Virtual) Rate() float64 { return c.rate }

// SetBound caps seek targets at the song's end. Negative limits are
// treated as zero.
func (c *Virtual) SetBound(limit float64) {
	if limit < 0 {
		limit = 0
	}
	c.bound = limit
}

// Now returns the virtual time for the given audio-clock reading. While
// paused it returns the frozen position. An audio reading behind the anchor
// (device reset) holds the position rather than running backwards; the next
// transport command re-anchors.
func (c *Virtual) Now(audioNow float64) float64 {
	if !c.running {
		return c.virtAtRef
	}
	elapsed := audioNow - c.refAudio
	if elapsed < 0 {
		elapsed = 0
	}
	return c.virtAtRef + elapsed*c.rate
}

// Start begins, or resumes, advancing from the current virtual position.
func (c *Virtual) Start(audioNow float64) {
	c.virtAtRef = c.Now(audioNow)
	c.refAudio = audioNow
	c.running = true
}

// Pause freezes the clock and returns the frozen virtual time.
func (c *Virtual) Pause(audioNow float64) float64 {
	c.virtAtRef = c.Now(audioNow)
	c.refAudio = audioNow
	c.running = false
	return c.virtAtRef
}

// Seek jumps to target, clamped to [0, bound], and returns the position
// actually taken. Whether the clock is running is preserved.
func (c *Virtual) Seek(audioNow, target float64) float64 {
	if target < 0 {
		target = 0
	}
	if target > c.bound {
		target = c.bound
	}
	c.virtAtRef = target
	c.refAudio = audioNow
	return c.virtAtRef
}

// SetRate changes the playback speed multiplier. The clock re-anchors at
// the current position first, so virtual time is continuous across the
// change. Non-positive rates are rejected and leave the clock untouched.
func (c *Virtual) SetRate(audioNow, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", rate)
	}
	c.virtAtRef = c.Now(audioNow)
	c.refAudio = audioNow
	c.rate = rate
	return nil
}

// Halt freezes the clock at the given position. Unlike Seek the target
// is not clamped to the bound: a song comes to rest past its last
// seekable position, at the end of the stop tail.
func (c *Virtual) Halt(at float64) {
	if at < 0 {
		at = 0
	}
	c.virtAtRef = at
	c.running = false
}

// Reset stops the clock and returns it to virtual time zero. The rate and
// bound survive a reset.
func (c *Virtual) Reset() {
	c.running = false
	c.refAudio = 0
	c.virtAtRef = 0
}
