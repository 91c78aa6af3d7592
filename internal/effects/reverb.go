package effects

// Reverb is a Schroeder-style room reverb: four parallel comb filters
// feeding two series allpass filters per channel. The right channel's
// delay lines run a few samples longer than the left's, which decorrelates
// the tails and gives the room stereo width from a mono input sum.
type Reverb struct {
	combL [4]comb
	combR [4]comb
	apL   [2]allpass
	apR   [2]allpass
	wet   float32
}

type comb struct {
	buf []float32
	pos int
	fb  float32
}

type allpass struct {
	buf []float32
	pos int
	fb  float32
}

// Extra delay on the right channel's lines, in samples.
const stereoSpread = 23

// NewReverb builds a reverb.
// roomSize: 0..1 scales the delay lengths.
// decay: 0..1 controls how long the tail rings.
// wet: wet/dry mix, 0 = bypass.
func NewReverb(sampleRate int, roomSize, decay, wet float32) *Reverb {
	base := int(float32(sampleRate) * clamp(roomSize, 0, 1) * 0.05)
	if base < 10 {
		base = 10
	}
	fb := clamp(decay, 0, 0.95)
	r := &Reverb{wet: clamp(wet, 0, 1)}
	// Mutually prime-ish length ratios keep the combs from piling up on
	// a common resonance.
	lens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	for i := range r.combL {
		r.combL[i] = comb{buf: make([]float32, lens[i]), fb: fb}
		r.combR[i] = comb{buf: make([]float32, lens[i]+stereoSpread), fb: fb}
	}
	apLens := [2]int{base * 347 / 1000, base * 213 / 1000}
	for i := range r.apL {
		r.apL[i] = allpass{buf: make([]float32, max(apLens[i], 1)), fb: 0.5}
		r.apR[i] = allpass{buf: make([]float32, max(apLens[i]+stereoSpread, 1)), fb: 0.5}
	}
	return r
}

func (r *Reverb) Apply(dst []float32) {
	wet := r.wet
	if wet <= 0 {
		return
	}
	dry := 1 - wet
	for i := 0; i+1 < len(dst); i += 2 {
		in := (dst[i] + dst[i+1]) * 0.5
		var outL, outR float32
		for c := range r.combL {
			outL += r.combL[c].process(in)
			outR += r.combR[c].process(in)
		}
		outL *= 0.25
		outR *= 0.25
		for a := range r.apL {
			outL = r.apL[a].process(outL)
			outR = r.apR[a].process(outR)
		}
		dst[i] = dst[i]*dry + outL*wet
		dst[i+1] = dst[i+1]*dry + outR*wet
	}
}

func (r *Reverb) Reset() {
	for i := range r.combL {
		r.combL[i].reset()
		r.combR[i].reset()
	}
	for i := range r.apL {
		r.apL[i].reset()
		r.apR[i].reset()
	}
}

func (c *comb) process(in float32) float32 {
	out := c.buf[c.pos]
	c.buf[c.pos] = in + out*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (c *comb) reset() {
	for i := range c.buf {
		c.buf[i] = 0
	}
	c.pos = 0
}

func (a *allpass) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

func (a *allpass) reset() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.pos = 0
}
