// Package effects holds the master bus processing applied to the mixed
// instrument output, both on the live device stream and in offline
// rendering. Effects work in place on blocks of stereo interleaved
// float32 frames.
package effects

// Effect processes one block of stereo interleaved samples in place.
type Effect interface {
	Apply(dst []float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effect
}

func NewChain(effects ...Effect) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Apply(dst []float32) {
	for _, e := range c.effects {
		e.Apply(dst)
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effect) {
	c.effects = append(c.effects, e)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
