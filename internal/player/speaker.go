package player

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

// Every published loop is 44.1kHz mp3, so the speaker runs at that rate
// and odd inputs get resampled instead of re-initializing the device.
const speakerRate = beep.SampleRate(44100)

// SpeakerOutput plays loops through the system audio device via beep.
type SpeakerOutput struct {
	cache *Cache
}

func NewSpeakerOutput(cache *Cache) (*SpeakerOutput, error) {
	if err := speaker.Init(speakerRate, speakerRate.N(200*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("speaker init: %w", err)
	}
	return &SpeakerOutput{cache: cache}, nil
}

func (o *SpeakerOutput) Load(ctx context.Context, ref string) (Handle, error) {
	path, err := o.cache.LocalPath(ctx, ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	if streamer.Len() <= 0 {
		streamer.Close()
		f.Close()
		return nil, fmt.Errorf("decode %s: empty stream", ref)
	}

	return &speakerHandle{file: f, streamer: streamer, format: format}, nil
}

type speakerHandle struct {
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	playing  bool
}

func (h *speakerHandle) Duration() time.Duration {
	return h.format.SampleRate.D(h.streamer.Len())
}

func (h *speakerHandle) Seek(offset time.Duration) error {
	n := h.format.SampleRate.N(offset)
	if n < 0 {
		n = 0
	}
	if n >= h.streamer.Len() {
		n = h.streamer.Len() - 1
	}

	if h.playing {
		speaker.Lock()
		defer speaker.Unlock()
	}
	return h.streamer.Seek(n)
}

func (h *speakerHandle) Play() error {
	if h.playing {
		return nil
	}

	var stream beep.Streamer = beep.Loop(-1, h.streamer)
	if h.format.SampleRate != speakerRate {
		stream = beep.Resample(4, h.format.SampleRate, speakerRate, stream)
	}

	speaker.Play(stream)
	h.playing = true
	return nil
}

func (h *speakerHandle) Position() (time.Duration, error) {
	speaker.Lock()
	pos := h.streamer.Position()
	speaker.Unlock()
	return h.format.SampleRate.D(pos), nil
}

func (h *speakerHandle) Close() error {
	if h.playing {
		speaker.Clear()
		h.playing = false
	}
	err := h.streamer.Close()
	h.file.Close()
	return err
}
