package fallingnotes

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/kobeyabkk/falling-notes-piano/internal/config"
	"github.com/kobeyabkk/falling-notes-piano/internal/engine"
	"github.com/kobeyabkk/falling-notes-piano/internal/midifile"
	"github.com/kobeyabkk/falling-notes-piano/internal/song"
	"github.com/kobeyabkk/falling-notes-piano/internal/synth"
)

// RenderSamples plays a song offline through the scheduler and the
// synthesizer and returns interleaved stereo float32 frames. Notes fire
// exactly where live playback would fire them: the scheduler is ticked
// against a synthetic audio clock derived from the rendered frame count.
func RenderSamples(src NoteSource, sampleRate int, rate float64) ([]float32, error) {
	notes := src.Notes()
	if len(notes) == 0 {
		return nil, errors.New("song has no notes")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("playback rate must be positive, got %g", rate)
	}
	converted := make([]song.Note, len(notes))
	for i, n := range notes {
		converted[i] = song.Note{Pitch: n.Pitch, Start: n.Start, End: n.End, Velocity: n.Velocity}
	}

	syn := synth.New(sampleRate, synth.DefaultParams())
	busCfg := config.Default()
	busCfg.Audio.SampleRate = sampleRate
	bus := masterBus(busCfg)
	ended := false
	eng := engine.New(engine.Config{}, engine.Options{
		OnTrigger: func(n song.Note, durSeconds, velocity float64) {
			syn.Trigger(n.Pitch, durSeconds, velocity)
		},
		OnEvent: func(k engine.EventKind) {
			if k == engine.EventEnded {
				ended = true
			}
		},
	})
	eng.Load(song.BuildIndex(converted), src.Duration())
	if rate != 1 {
		if err := eng.SetRate(0, rate); err != nil {
			return nil, err
		}
	}
	eng.Start(0)

	const block = 256
	tail := engine.DefaultConfig().StopTailSeconds
	maxFrames := int(float64(sampleRate)*(eng.SongDuration()+tail)/rate) + 2*sampleRate

	var out []float32
	buf := make([]float32, block*2)
	frames := 0
	for !ended && frames < maxFrames {
		audioNow := float64(frames) / float64(sampleRate)
		eng.Tick(audioNow, audioNow)
		syn.Process(buf)
		bus.Apply(buf)
		out = append(out, buf...)
		frames += block
	}
	// Let releasing voices and the room ring out past the stop.
	for i := 0; i < sampleRate/2; i += block {
		syn.Process(buf)
		bus.Apply(buf)
		out = append(out, buf...)
	}
	return out, nil
}

// RenderWAV renders a song offline and writes it as a 16-bit stereo WAV
// file.
func RenderWAV(src NoteSource, path string, sampleRate int, rate float64) error {
	samples, err := RenderSamples(src, sampleRate, rate)
	if err != nil {
		return err
	}
	return writeWAV(path, samples, sampleRate)
}

// RenderFile renders a MIDI file to a WAV file.
func RenderFile(midiPath, wavPath string, sampleRate int, rate float64) error {
	sng, err := midifile.Load(midiPath)
	if err != nil {
		return err
	}
	return RenderWAV(fileSource{sng}, wavPath, sampleRate, rate)
}

// fileSource adapts a loaded MIDI file to the NoteSource interface.
type fileSource struct {
	sng *midifile.Song
}

func (f fileSource) Title() string { return f.sng.Title }

func (f fileSource) Notes() []Note {
	notes := make([]Note, len(f.sng.Notes))
	for i, n := range f.sng.Notes {
		notes[i] = publicNote(n)
	}
	return notes
}

func (f fileSource) Duration() float64 { return f.sng.Duration }

func writeWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}
