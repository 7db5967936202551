package appliance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// SmartSpeaker is a simulated speaker. It plays a song only while on.
type SmartSpeaker struct {
	power
	latency time.Duration

	mu      sync.Mutex // Protects playing
	playing string
}

// NewSmartSpeaker creates a speaker that starts switched off and silent.
func NewSmartSpeaker(latency time.Duration) *SmartSpeaker {
	return &SmartSpeaker{latency: latency}
}

// Kind implements device.Kinded.
func (s *SmartSpeaker) Kind() string { return KindSmartSpeaker }

// IsOn reports whether the speaker is switched on.
func (s *SmartSpeaker) IsOn() bool { return s.isOn() }

// NowPlaying returns the current song, or "" when silent.
func (s *SmartSpeaker) NowPlaying() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Accept implements device.Device.
func (s *SmartSpeaker) Accept(ctx context.Context, msg device.Message) (device.Result, error) {
	switch msg.Kind() {
	case device.CommandSwitchOn, device.CommandSwitchOff, device.CommandPlaySong:
	default:
		return device.Result{}, unsupported(KindSmartSpeaker, msg)
	}

	if err := simulate(ctx, s.latency); err != nil {
		return device.Result{}, err
	}

	switch msg.Kind() {
	case device.CommandSwitchOn:
		return s.set(true), nil
	case device.CommandSwitchOff:
		res := s.set(false)
		s.mu.Lock()
		s.playing = ""
		s.mu.Unlock()
		return res, nil
	default:
		return s.play(msg)
	}
}

func (s *SmartSpeaker) play(msg device.Message) (device.Result, error) {
	song, ok := msg.Payload()
	song = strings.TrimSpace(song)
	if !ok || song == "" {
		return device.Result{}, fmt.Errorf("%w: play_song needs a song title", ErrMissingPayload)
	}

	// Hold the power lock so the speaker cannot be switched off mid-check.
	s.power.mu.Lock()
	defer s.power.mu.Unlock()
	if !s.power.on {
		return device.Result{}, fmt.Errorf("%w: cannot play %q", ErrPoweredOff, song)
	}

	s.mu.Lock()
	s.playing = song
	s.mu.Unlock()
	return device.Result{Value: "playing " + song}, nil
}
