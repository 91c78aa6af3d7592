package engine

import "errors"

// ErrInvalidRange is returned when a repeat point B does not lie after
// point A.
var ErrInvalidRange = errors.New("repeat point B must be after point A")

// Repeat holds the A-B practice range. Point A can always be (re)placed;
// point B must follow A. The range only wraps playback while enabled and
// both points are set.
type Repeat struct {
	a, b    float64
	aSet    bool
	bSet    bool
	enabled bool
}

// SetA places point A. A point B that no longer follows the new A is
// dropped.
func (r *Repeat) SetA(t float64) {
	r.a = t
	r.aSet = true
	if r.bSet && r.b <= r.a {
		r.bSet = false
	}
}

// SetB places point B. It fails with ErrInvalidRange when A is not set or
// t does not lie after A; the stored range is left untouched.
func (r *Repeat) SetB(t float64) error {
	if !r.aSet || t <= r.a {
		return ErrInvalidRange
	}
	r.b = t
	r.bSet = true
	return nil
}

func (r *Repeat) Enable(on bool) { r.enabled = on }

// Clear drops both points and disables the range.
func (r *Repeat) Clear() {
	*r = Repeat{}
}

// Active reports whether playback should wrap at B.
func (r *Repeat) Active() bool { return r.enabled && r.aSet && r.bSet }

func (r *Repeat) A() (float64, bool) { return r.a, r.aSet }
func (r *Repeat) B() (float64, bool) { return r.b, r.bSet }
