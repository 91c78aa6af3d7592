package midifile

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/kobeyabkk/falling-notes-piano/internal/song"
)

// Song is a note list decoded from a standard MIDI file, with times in
// seconds from the start of the piece.
type Song struct {
	Path     string
	Title    string
	Notes    []song.Note
	Duration float64
	Tracks   int
	BPM      float64 // tempo at the top of the piece
}

type openNote struct {
	tick     int64
	velocity uint8
}

// Load decodes a standard MIDI file from disk. See FromSMF for the
// decoding rules.
func Load(path string) (*Song, error) {
	rd, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s, err := FromSMF(rd)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s.Path = path
	base := filepath.Base(path)
	s.Title = strings.TrimSuffix(base, filepath.Ext(base))
	return s, nil
}

// FromSMF decodes an already-parsed MIDI file into a time-sorted note
// list. Note starts and ends pair up first-in-first-out per track,
// channel and key, so overlapping repeats of the same key keep their
// played order. Notes left hanging at the end of a track are closed
// there; zero-length notes are dropped.
func FromSMF(rd *smf.SMF) (*Song, error) {
	mt, ok := rd.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported time format %v", rd.TimeFormat)
	}
	tm := newTempoMap(rd.TempoChanges(), float64(mt.Ticks4th()))

	var notes []song.Note
	for _, track := range rd.Tracks {
		open := make(map[uint16][]openNote)
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteStart(&ch, &key, &vel):
				slot := uint16(ch)<<8 | uint16(key)
				open[slot] = append(open[slot], openNote{tick: abs, velocity: vel})
			case ev.Message.GetNoteEnd(&ch, &key):
				slot := uint16(ch)<<8 | uint16(key)
				if pending := open[slot]; len(pending) > 0 {
					notes = appendNote(notes, tm, int(key), pending[0], abs)
					open[slot] = pending[1:]
				}
			}
		}
		// Close anything still sounding at the end of the track.
		for slot, pending := range open {
			key := int(slot & 0xFF)
			for _, on := range pending {
				notes = appendNote(notes, tm, key, on, abs)
			}
		}
	}
	if len(notes) == 0 {
		return nil, errors.New("no playable notes")
	}

	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })
	var duration float64
	for _, n := range notes {
		if n.End > duration {
			duration = n.End
		}
	}

	return &Song{
		Notes:    notes,
		Duration: duration,
		Tracks:   int(rd.NumTracks()),
		BPM:      tm.spans[0].bpm,
	}, nil
}

func appendNote(notes []song.Note, tm *tempoMap, key int, on openNote, endTick int64) []song.Note {
	start := tm.seconds(on.tick)
	end := tm.seconds(endTick)
	if end <= start {
		return notes
	}
	return append(notes, song.Note{
		Pitch:    key,
		Start:    start,
		End:      end,
		Velocity: float64(on.velocity) / 127,
	})
}

type tempoSpan struct {
	startTick  int64
	startSec   float64
	secPerTick float64
	bpm        float64
}

// tempoMap converts absolute ticks to seconds across tempo changes.
type tempoMap struct {
	spans []tempoSpan
}

func newTempoMap(changes smf.TempoChanges, ticksPerQuarter float64) *tempoMap {
	tm := &tempoMap{spans: []tempoSpan{{
		secPerTick: 60 / (120 * ticksPerQuarter),
		bpm:        120,
	}}}
	for _, tc := range changes {
		if tc.BPM <= 0 {
			continue
		}
		last := &tm.spans[len(tm.spans)-1]
		span := tempoSpan{
			startTick:  tc.AbsTicks,
			startSec:   last.startSec + float64(tc.AbsTicks-last.startTick)*last.secPerTick,
			secPerTick: 60 / (tc.BPM * ticksPerQuarter),
			bpm:        tc.BPM,
		}
		if span.startTick == last.startTick {
			*last = span
			continue
		}
		tm.spans = append(tm.spans, span)
	}
	return tm
}

func (tm *tempoMap) seconds(tick int64) float64 {
	s := tm.spans[0]
	for _, span := range tm.spans[1:] {
		if span.startTick > tick {
			break
		}
		s = span
	}
	return s.startSec + float64(tick-s.startTick)*s.secPerTick
}
