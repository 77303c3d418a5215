package audio

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/log"
)

// DefaultMixerBinary adjusts ALSA mixer controls.
const DefaultMixerBinary = "amixer"

// MixerController applies volume and mute to an ordered list of mixer
// controls on one card. Failures are logged, never fatal.
type MixerController struct {
	binary   string
	card     string
	controls []string
	logger   zerolog.Logger
}

// MixerOption configures a MixerController.
type MixerOption func(*MixerController)

// WithMixerBinary overrides the mixer executable (used by tests).
func WithMixerBinary(binary string) MixerOption {
	return func(m *MixerController) { m.binary = binary }
}

// NewMixer creates a controller for the given card and control names.
func NewMixer(card string, controls []string, opts ...MixerOption) *MixerController {
	m := &MixerController{
		binary:   DefaultMixerBinary,
		card:     card,
		controls: controls,
		logger:   log.WithComponent("amixer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetVolume clamps percent to [0, 100] and applies it to each control in
// sequence.
func (m *MixerController) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	m.apply(fmt.Sprintf("%d%%", percent))
}

// SetMute toggles mute on each control in sequence.
func (m *MixerController) SetMute(mute bool) {
	verb := "unmute"
	if mute {
		verb = "mute"
	}
	m.apply(verb)
}

func (m *MixerController) apply(value string) {
	path, err := exec.LookPath(m.binary)
	if err != nil {
		m.logger.Warn().
			Str("event", "mixer.binary_missing").
			Str("binary", m.binary).
			Msg("mixer binary not found; skipping")
		return
	}
	for _, control := range m.controls {
		args := []string{"-c", m.card, "set", control, value}
		m.logger.Info().
			Str("event", "mixer.set").
			Str("control", control).
			Str("value", value).
			Msg("executing " + m.binary + " " + strings.Join(args, " "))
		cmd := exec.Command(path, args...) // #nosec G204 -- card and controls come from config
		if err := cmd.Run(); err != nil {
			m.logger.Error().
				Err(err).
				Str("event", "mixer.failed").
				Str("control", control).
				Msg("mixer command failed")
		}
	}
}
