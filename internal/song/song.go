package song

import "sort"

// Note is one playable note in song time. Start and End are seconds at
// rate 1.0; the note sounds over [Start, End).
type Note struct {
	ID       int
	Pitch    int     // MIDI note number
	Start    float64 // seconds
	End      float64 // seconds
	Velocity float64 // normalized 0..1
}

func (n Note) Duration() float64 { return n.End - n.Start }

// Index is an immutable, time-sorted view over a song's notes. Build one
// with BuildIndex; reloading a song means building a new one.
type Index struct {
	notes       []Note
	maxDuration float64
	maxEnd      float64
	lowPitch    int
	highPitch   int
}

// BuildIndex copies notes, sorts them by start time (stable: equal starts
// keep their input order) and assigns dense IDs in sorted order. An empty
// or nil slice yields a valid empty index.
func BuildIndex(notes []Note) *Index {
	sorted := make([]Note, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	x := &Index{notes: sorted, lowPitch: 128, highPitch: -1}
	for i := range sorted {
		sorted[i].ID = i
		if d := sorted[i].Duration(); d > x.maxDuration {
			x.maxDuration = d
		}
		if sorted[i].End > x.maxEnd {
			x.maxEnd = sorted[i].End
		}
		if sorted[i].Pitch < x.lowPitch {
			x.lowPitch = sorted[i].Pitch
		}
		if sorted[i].Pitch > x.highPitch {
			x.highPitch = sorted[i].Pitch
		}
	}
	return x
}

func (x *Index) Len() int      { return len(x.notes) }
func (x *Index) Empty() bool   { return len(x.notes) == 0 }
func (x *Index) At(i int) Note { return x.notes[i] }

// MaxDuration is the length of the longest note, 0 when empty.
func (x *Index) MaxDuration() float64 { return x.maxDuration }

// MaxEnd is the latest end time across all notes, 0 when empty.
func (x *Index) MaxEnd() float64 { return x.maxEnd }

// PitchRange reports the lowest and highest pitch in the index.
func (x *Index) PitchRange() (low, high int) {
	if x.Empty() {
		return 0, 0
	}
	return x.lowPitch, x.highPitch
}

// Window returns the notes whose start lies in [from, to], ascending by
// start. The slice aliases the index's storage; callers must treat it as
// read-only. Notes that started before the window but are still sounding
// are the caller's concern: widen `from` by the maximum note duration and
// filter on End.
func (x *Index) Window(from, to float64) []Note {
	lo := sort.Search(len(x.notes), func(i int) bool { return x.notes[i].Start >= from })
	hi := sort.Search(len(x.notes), func(i int) bool { return x.notes[i].Start > to })
	if lo >= hi {
		return nil
	}
	return x.notes[lo:hi]
}
