package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a programs file.
//
//	programs:
//	  - name: wake-up
//	    groups:
//	      - mode: parallel
//	        commands:
//	          - {device: hue-light, command: switch_on}
type File struct {
	Programs []Program `yaml:"programs"`
}

// LoadFile reads and validates a programs file.
func LoadFile(path string) ([]Program, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("reading programs file: %w", err)
	}

	programs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return programs, nil
}

// Parse decodes a programs document and validates every program in it.
// Unknown keys are rejected so typos surface instead of being ignored.
func Parse(data []byte) ([]Program, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing programs: %w", err)
	}

	seen := make(map[string]bool, len(f.Programs))
	for i := range f.Programs {
		p := &f.Programs[i]
		p.Name = normaliseName(p.Name)

		if err := ValidateProgram(p); err != nil {
			return nil, fmt.Errorf("program %d (%q): %w", i, p.Name, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %q defined twice", ErrProgramExists, p.Name)
		}
		seen[p.Name] = true
	}
	return f.Programs, nil
}

// Device names used by the built-in programs and the default configuration.
const (
	DefaultLightName   = "hue-light"
	DefaultSpeakerName = "speaker"
	DefaultToiletName  = "toilet"
)

// DefaultSong is what the built-in wake-up program plays.
const DefaultSong = "Rick Astley - Never Gonna Give You Up"

// Defaults returns the built-in programs.
//
// wake-up turns the light and speaker on together and only then starts the
// song. sleep turns both off together, then flushes and cleans the toilet
// strictly in that order.
func Defaults() []Program {
	song := DefaultSong
	return []Program{
		{
			Name:        "wake-up",
			Description: "Lights and speaker on, then play a song",
			Groups: []Group{
				{
					Mode: ModeParallel,
					Commands: []Command{
						{Device: DefaultLightName, Command: "switch_on"},
						{Device: DefaultSpeakerName, Command: "switch_on"},
					},
				},
				{
					Mode: ModeSequence,
					Commands: []Command{
						{Device: DefaultSpeakerName, Command: "play_song", Payload: &song},
					},
				},
			},
		},
		{
			Name:        "sleep",
			Description: "Lights and speaker off, then flush and clean the toilet",
			Groups: []Group{
				{
					Mode: ModeParallel,
					Commands: []Command{
						{Device: DefaultLightName, Command: "switch_off"},
						{Device: DefaultSpeakerName, Command: "switch_off"},
					},
				},
				{
					Mode: ModeSequence,
					Commands: []Command{
						{Device: DefaultToiletName, Command: "flush"},
						{Device: DefaultToiletName, Command: "clean"},
					},
				},
			},
		},
	}
}
