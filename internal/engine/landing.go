package engine

import "github.com/kobeyabkk/falling-notes-piano/internal/song"

type landingRecord struct {
	landed   bool
	landedAt float64
	litUntil float64
}

// Detector tracks which notes have landed on the trigger line within the
// current playback epoch. A note lands at most once per epoch; stop, seek,
// loop wrap, repeat wrap and reload each start a new epoch via Reset.
type Detector struct {
	minLit  float64
	records []landingRecord
}

func NewDetector(minLitSeconds float64) *Detector {
	return &Detector{minLit: minLitSeconds}
}

// Size prepares the detector for a song with n notes (IDs 0..n-1) and
// resets all landing state.
func (d *Detector) Size(n int) {
	if cap(d.records) < n {
		d.records = make([]landingRecord, n)
	}
	d.records = d.records[:n]
	d.Reset()
}

// Reset returns every note to pending.
func (d *Detector) Reset() {
	for i := range d.records {
		d.records[i] = landingRecord{}
	}
}

func (d *Detector) Landed(id int) bool {
	if id < 0 || id >= len(d.records) {
		return false
	}
	return d.records[id].landed
}

// Lit reports whether a landed note's highlight window is still open.
func (d *Detector) Lit(id int, now float64) bool {
	if id < 0 || id >= len(d.records) {
		return false
	}
	r := d.records[id]
	return r.landed && now < r.litUntil
}

// LandedAt returns the virtual time the note landed; ok is false while the
// note is still pending.
func (d *Detector) LandedAt(id int) (t float64, ok bool) {
	if id < 0 || id >= len(d.records) || !d.records[id].landed {
		return 0, false
	}
	return d.records[id].landedAt, true
}

// CheckAndMark transitions a pending note to landed and reports whether it
// landed on this frame. Screen y grows downward; prevEdgeY is the note's
// off-edge position at the epoch's reference frame and currEdgeY the
// on-edge position now. The note lands when the on-edge has reached the
// trigger line while the off-edge was still strictly above it at the
// reference frame: seeking into the middle of a sounding note fires it
// once, notes fully past the line stay silent. The highlight window is
// max(minLit, duration/rate) so short notes at high rates stay readable.
func (d *Detector) CheckAndMark(n song.Note, prevEdgeY, currEdgeY, triggerY, now, rate float64) bool {
	if n.ID < 0 || n.ID >= len(d.records) {
		return false
	}
	r := &d.records[n.ID]
	if r.landed {
		return false
	}
	if prevEdgeY >= triggerY || currEdgeY < triggerY {
		return false
	}
	lit := n.Duration() / rate
	if lit < d.minLit {
		lit = d.minLit
	}
	r.landed = true
	r.landedAt = now
	r.litUntil = now + lit
	return true
}
