// Package chime sounds a short audio cue alongside the break reminder.
package chime

import (
	"bytes"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate = 44100
	toneHz     = 880.0
	toneLength = 400 * time.Millisecond
)

// Player renders a fixed sine burst through the system audio device. The
// audio context is opened on the first Play because opening grabs the device.
type Player struct {
	log *slog.Logger
	pcm []byte

	once sync.Once
	ctx  *oto.Context
	err  error
}

// NewPlayer prepares the chime samples. No audio device is touched yet.
func NewPlayer(log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{log: log, pcm: tonePCM(toneHz, toneLength, sampleRate)}
}

// Play sounds the chime without blocking the caller. An unavailable audio
// device disables the chime; the reminder itself is unaffected.
func (p *Player) Play() {
	go p.play()
}

func (p *Player) play() {
	p.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			p.err = err
			p.log.Warn("chime.disabled", "error", err.Error())
			return
		}
		// Wait for the hardware audio devices to be ready.
		<-ready
		p.ctx = ctx
	})
	if p.err != nil {
		return
	}

	player := p.ctx.NewPlayer(bytes.NewReader(p.pcm))
	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := player.Close(); err != nil {
		p.log.Warn("chime.player_close_failed", "error", err.Error())
	}
}

// tonePCM renders a mono sine burst as signed 16-bit little-endian samples,
// with a short linear fade at both ends to avoid clicks.
func tonePCM(freq float64, length time.Duration, rate int) []byte {
	n := int(float64(rate) * length.Seconds())
	fade := rate / 50
	out := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		gain := 1.0
		if i < fade {
			gain = float64(i) / float64(fade)
		}
		if tail := n - 1 - i; tail < fade {
			if g := float64(tail) / float64(fade); g < gain {
				gain = g
			}
		}
		v := 0.4 * gain * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		s := int16(v * math.MaxInt16)
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
