package midifile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// writeSMF writes song.mid with a 480-tick quarter note, a tempo track
// and the given pre-closed note tracks.
func writeSMF(t *testing.T, bpm float64, tracks ...smf.Track) string {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)
	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	require.NoError(t, sm.Add(tempo))
	for _, tr := range tracks {
		require.NoError(t, sm.Add(tr))
	}
	path := filepath.Join(t.TempDir(), "song.mid")
	require.NoError(t, sm.WriteFile(path))
	return path
}

func TestLoadReadsNotesWithTempo(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 64, 127))
	tr.Add(960, midi.NoteOff(0, 64))
	tr.Close(0)

	s, err := Load(writeSMF(t, 120, tr))
	require.NoError(t, err)
	require.Len(t, s.Notes, 2)

	// At 120 BPM a 480-tick quarter lasts half a second.
	assert.Equal(t, 60, s.Notes[0].Pitch)
	assert.InDelta(t, 0.0, s.Notes[0].Start, 1e-9)
	assert.InDelta(t, 0.5, s.Notes[0].End, 1e-9)
	assert.InDelta(t, 100.0/127, s.Notes[0].Velocity, 1e-9)
	assert.Equal(t, 64, s.Notes[1].Pitch)
	assert.InDelta(t, 0.5, s.Notes[1].Start, 1e-9)
	assert.InDelta(t, 1.5, s.Notes[1].End, 1e-9)
	assert.InDelta(t, 1.0, s.Notes[1].Velocity, 1e-9)

	assert.InDelta(t, 1.5, s.Duration, 1e-9)
	assert.InDelta(t, 120.0, s.BPM, 1e-9)
	assert.Equal(t, 2, s.Tracks)
	assert.Equal(t, "song", s.Title)
}

func TestLoadHonorsTempoChanges(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)
	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(120))
	tempo.Add(480, smf.MetaTempo(240))
	tempo.Close(0)
	require.NoError(t, sm.Add(tempo))
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 62, 100))
	tr.Add(480, midi.NoteOff(0, 62))
	tr.Close(0)
	require.NoError(t, sm.Add(tr))
	path := filepath.Join(t.TempDir(), "tempo.mid")
	require.NoError(t, sm.WriteFile(path))

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Notes, 2)
	assert.InDelta(t, 0.5, s.Notes[0].End, 1e-9)
	assert.InDelta(t, 0.5, s.Notes[1].Start, 1e-9)
	// The second quarter runs at 240 BPM and lasts half as long.
	assert.InDelta(t, 0.75, s.Notes[1].End, 1e-9)
	assert.InDelta(t, 120.0, s.BPM, 1e-9)
}

func TestLoadPairsRepeatedKeysInPlayedOrder(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(240, midi.NoteOn(0, 60, 80))
	tr.Add(240, midi.NoteOff(0, 60))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Close(0)

	s, err := Load(writeSMF(t, 120, tr))
	require.NoError(t, err)
	require.Len(t, s.Notes, 2)

	// The first press ends at the first release.
	assert.InDelta(t, 0.0, s.Notes[0].Start, 1e-9)
	assert.InDelta(t, 0.5, s.Notes[0].End, 1e-9)
	assert.InDelta(t, 100.0/127, s.Notes[0].Velocity, 1e-9)
	assert.InDelta(t, 0.25, s.Notes[1].Start, 1e-9)
	assert.InDelta(t, 1.0, s.Notes[1].End, 1e-9)
	assert.InDelta(t, 80.0/127, s.Notes[1].Velocity, 1e-9)
}

func TestLoadClosesHangingNotesAtTrackEnd(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Close(960)

	s, err := Load(writeSMF(t, 120, tr))
	require.NoError(t, err)
	require.Len(t, s.Notes, 1)
	assert.InDelta(t, 1.0, s.Notes[0].End, 1e-9)
}

func TestLoadDropsZeroLengthNotes(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(0, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 62, 100))
	tr.Add(480, midi.NoteOff(0, 62))
	tr.Close(0)

	s, err := Load(writeSMF(t, 120, tr))
	require.NoError(t, err)
	require.Len(t, s.Notes, 1)
	assert.Equal(t, 62, s.Notes[0].Pitch)
}

func TestLoadTreatsVelocityZeroAsRelease(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOn(0, 60, 0))
	tr.Close(0)

	s, err := Load(writeSMF(t, 120, tr))
	require.NoError(t, err)
	require.Len(t, s.Notes, 1)
	assert.InDelta(t, 0.5, s.Notes[0].End, 1e-9)
}

func TestLoadMergesTracksAndChannels(t *testing.T) {
	var a, b smf.Track
	a.Add(0, midi.NoteOn(0, 60, 100))
	a.Add(480, midi.NoteOff(0, 60))
	a.Close(0)
	// Same key on another channel and track, overlapping in time.
	b.Add(240, midi.NoteOn(1, 60, 90))
	b.Add(480, midi.NoteOff(1, 60))
	b.Close(0)

	s, err := Load(writeSMF(t, 120, a, b))
	require.NoError(t, err)
	require.Len(t, s.Notes, 2)
	assert.InDelta(t, 0.0, s.Notes[0].Start, 1e-9)
	assert.InDelta(t, 0.25, s.Notes[1].Start, 1e-9)
	assert.InDelta(t, 0.75, s.Notes[1].End, 1e-9)
	assert.Equal(t, 3, s.Tracks)
}

func TestLoadReportsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.mid"))
	require.Error(t, err)
}

func TestLoadRejectsSongsWithoutNotes(t *testing.T) {
	_, err := Load(writeSMF(t, 120))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no playable notes")
}

func TestFromSMFCarriesNoFileMetadata(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 72, 90))
	tr.Add(480, midi.NoteOff(0, 72))
	tr.Close(0)

	rd, err := smf.ReadFile(writeSMF(t, 120, tr))
	require.NoError(t, err)

	s, err := FromSMF(rd)
	require.NoError(t, err)
	require.Len(t, s.Notes, 1)
	assert.Equal(t, 72, s.Notes[0].Pitch)
	assert.InDelta(t, 0.5, s.Notes[0].End, 1e-9)
	assert.Empty(t, s.Path)
	assert.Empty(t, s.Title)
}
