// Package connection implements the IS-05 receiver model: staged and
// active transport parameters, the activation transaction and the SDP
// projection handed to the audio daemon.
package connection

import (
	"errors"
	"fmt"
	"net"
)

// ModeActivateImmediate is the only activation mode the controller
// honors. Other modes parse but are rejected at activation time.
const ModeActivateImmediate = "activate_immediate"

var (
	// ErrValidation classifies bad staged input (mapped to HTTP 400).
	ErrValidation = errors.New("validation failed")

	// ErrModeNotImplemented classifies activation modes outside
	// activate_immediate (mapped to HTTP 501).
	ErrModeNotImplemented = errors.New("activation mode not implemented")
)

// TransportParams describes one RTP interface leg. This node exposes a
// single leg.
type TransportParams struct {
	DestinationIP   string  `json:"destination_ip"`
	DestinationPort int     `json:"destination_port"`
	SourceIP        *string `json:"source_ip"`
	InterfaceIP     *string `json:"interface_ip"`
	TTL             int     `json:"ttl"`
	SampleRate      int     `json:"sample_rate"`
	EncodingName    string  `json:"encoding_name"`
	PayloadType     int     `json:"payload_type"`
}

// DefaultTransportParams returns the documented leg defaults.
func DefaultTransportParams() TransportParams {
	return TransportParams{
		DestinationIP:   "239.0.0.1",
		DestinationPort: 5004,
		TTL:             64,
		SampleRate:      48000,
		EncodingName:    "L24",
		PayloadType:     96,
	}
}

// Validate checks every field against the documented constraints.
func (p TransportParams) Validate() error {
	invalid := func(field, reason string) error {
		return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
	}
	ip := net.ParseIP(p.DestinationIP)
	if ip == nil || ip.To4() == nil {
		return invalid("destination_ip", "must be an IPv4 address")
	}
	if p.DestinationPort < 1 || p.DestinationPort > 65535 {
		return invalid("destination_port", "must be within [1, 65535]")
	}
	for _, opt := range []struct {
		name  string
		value *string
	}{{"source_ip", p.SourceIP}, {"interface_ip", p.InterfaceIP}} {
		if opt.value != nil && net.ParseIP(*opt.value) == nil {
			return invalid(opt.name, "must be an IP address")
		}
	}
	if p.TTL < 1 || p.TTL > 255 {
		return invalid("ttl", "must be within [1, 255]")
	}
	if p.SampleRate < 8000 || p.SampleRate > 192000 {
		return invalid("sample_rate", "must be within [8000, 192000]")
	}
	if p.EncodingName == "" {
		return invalid("encoding_name", "must not be empty")
	}
	if p.PayloadType < 0 || p.PayloadType > 127 {
		return invalid("payload_type", "must be within [0, 127]")
	}
	return nil
}

// ActivationParams carries the requested activation mode.
type ActivationParams struct {
	Mode          string  `json:"mode"`
	RequestedTime *string `json:"requested_time"`
}

// DefaultActivationParams returns immediate activation.
func DefaultActivationParams() ActivationParams {
	return ActivationParams{Mode: ModeActivateImmediate}
}

// AudioParams carries the local playback volume and mute flags.
type AudioParams struct {
	Volume int  `json:"volume"`
	Mute   bool `json:"mute"`
}

// Validate checks the volume range.
func (a AudioParams) Validate() error {
	if a.Volume < 0 || a.Volume > 100 {
		return fmt.Errorf("%w: volume must be within [0, 100]", ErrValidation)
	}
	return nil
}

// StagedState is the staged (or active) parameter set of the receiver.
type StagedState struct {
	MasterEnable    bool              `json:"master_enable"`
	TransportParams []TransportParams `json:"transport_params"`
	Activation      ActivationParams  `json:"activation"`
	Audio           AudioParams       `json:"audio"`
}

// DefaultStagedState returns a disabled receiver with one default leg
// and the given volume.
func DefaultStagedState(defaultVolume int) StagedState {
	return StagedState{
		TransportParams: []TransportParams{DefaultTransportParams()},
		Activation:      DefaultActivationParams(),
		Audio:           AudioParams{Volume: defaultVolume},
	}
}

// Validate checks the staged state as a whole.
func (s StagedState) Validate() error {
	if len(s.TransportParams) != 1 {
		return fmt.Errorf("%w: transport_params must contain exactly one leg", ErrValidation)
	}
	for _, p := range s.TransportParams {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if s.Activation.Mode == "" {
		return fmt.Errorf("%w: activation.mode must not be empty", ErrValidation)
	}
	return s.Audio.Validate()
}

// Clone returns a deep copy.
func (s StagedState) Clone() StagedState {
	out := s
	out.TransportParams = make([]TransportParams, len(s.TransportParams))
	for i, p := range s.TransportParams {
		cp := p
		cp.SourceIP = cloneStringPtr(p.SourceIP)
		cp.InterfaceIP = cloneStringPtr(p.InterfaceIP)
		out.TransportParams[i] = cp
	}
	out.Activation.RequestedTime = cloneStringPtr(s.Activation.RequestedTime)
	return out
}

// ReceiverState is the full persisted receiver state.
type ReceiverState struct {
	Staged        StagedState `json:"staged"`
	Active        StagedState `json:"active"`
	LastActivated *string     `json:"last_activated"`
	SinkActive    bool        `json:"sink_active"`
}

// Clone returns a deep copy.
func (r ReceiverState) Clone() ReceiverState {
	out := r
	out.Staged = r.Staged.Clone()
	out.Active = r.Active.Clone()
	out.LastActivated = cloneStringPtr(r.LastActivated)
	return out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
