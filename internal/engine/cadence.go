package engine

// Cadence decides how often a frame is worth rendering, from how much is
// moving on screen. An idle screen renders at the slow interval, a sparse
// one with nothing near the trigger line at the medium interval, and a
// busy one every frame. User actions boost to full rate for a short
// window so the UI feels immediate. Deferring a frame only defers
// rendering; timing state never depends on the cadence.
type Cadence struct {
	slow       float64 // seconds between renders when nothing is visible
	medium     float64 // seconds between renders when sparse and far from the line
	few        int     // "sparse" means at most this many visible notes
	boostFor   float64 // seconds of full rate after Boost
	interval   float64
	lastRender float64
	boostUntil float64
	rendered   bool
}

func NewCadence(slow, medium float64, few int, boostFor float64) *Cadence {
	return &Cadence{slow: slow, medium: medium, few: few, boostFor: boostFor}
}

// Observe feeds the previous frame's visibility metrics and picks the
// interval for upcoming frames.
func (c *Cadence) Observe(visible, nearLine int) {
	switch {
	case visible == 0:
		c.interval = c.slow
	case visible <= c.few && nearLine == 0:
		c.interval = c.medium
	default:
		c.interval = 0
	}
}

// Boost forces full-rate rendering for the boost window, typically after
// a transport command or other user input.
func (c *Cadence) Boost(wallNow float64) {
	c.boostUntil = wallNow + c.boostFor
}

// ShouldRender reports whether a frame at wallNow should render, and if
// so accounts for it.
func (c *Cadence) ShouldRender(wallNow float64) bool {
	if !c.rendered || wallNow < c.boostUntil || c.interval <= 0 {
		c.rendered = true
		c.lastRender = wallNow
		return true
	}
	if wallNow-c.lastRender >= c.interval {
		c.lastRender = wallNow
		return true
	}
	return false
}
