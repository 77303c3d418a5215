// Package config defines the application configuration model and the
// loader that resolves it from defaults, a YAML file and environment
// overrides (in ascending precedence).
package config

import (
	"time"
)

// SupportedConnectionVersions lists the IS-05 Connection API versions this
// node exposes, newest first.
var SupportedConnectionVersions = []string{"v1.3", "v1.2", "v1.1"}

// SupportedNodeVersions lists the IS-04 Node API versions this node exposes,
// newest first.
var SupportedNodeVersions = []string{"v1.3", "v1.2", "v1.1"}

// DefaultMixerControls are updated in sequence when no controls are
// configured. The pair matches the stereo DAC on the reference hardware.
var DefaultMixerControls = []string{"DAC LEFT LINEOUT", "DAC RIGHT LINEOUT"}

// RegistryConfig holds NMOS registration discovery and cadence settings.
type RegistryConfig struct {
	// Mode selects the discovery strategy: "dns-sd" browses for
	// _nmos-registration._tcp services, "static" relies on StaticURLs.
	Mode       string   `yaml:"mode"`
	StaticURLs []string `yaml:"static_urls"`
	// Versions restricts the IS-05 versions the node serves and
	// advertises in Device controls. Must be a non-empty subset of
	// SupportedConnectionVersions.
	Versions          []string `yaml:"versions"`
	HeartbeatInterval float64  `yaml:"heartbeat_interval"` // seconds, > 0
	DNSSDTimeout      float64  `yaml:"dns_sd_timeout"`     // seconds, > 0
}

// HeartbeatPeriod returns the heartbeat cadence as a duration.
func (r RegistryConfig) HeartbeatPeriod() time.Duration {
	return time.Duration(r.HeartbeatInterval * float64(time.Second))
}

// BrowseTimeout returns the DNS-SD browse bound as a duration.
func (r RegistryConfig) BrowseTimeout() time.Duration {
	return time.Duration(r.DNSSDTimeout * float64(time.Second))
}

// DaemonConfig points at the local aes67-linux-daemon HTTP API.
type DaemonConfig struct {
	BaseURL            string  `yaml:"base_url"`
	SinkID             int     `yaml:"sink_id"`
	StatusPollInterval float64 `yaml:"status_poll_interval"` // seconds, > 0
}

// PollPeriod returns the status poll cadence as a duration.
func (d DaemonConfig) PollPeriod() time.Duration {
	return time.Duration(d.StatusPollInterval * float64(time.Second))
}

// AudioConfig describes the local capture/playback bridge and mixer.
type AudioConfig struct {
	CaptureDevice    string     `yaml:"capture_device"`
	PlaybackDevice   string     `yaml:"playback_device"`
	AlsaloopBufferMS int        `yaml:"alsaloop_buffer_ms"` // [10, 500]
	MixerCard        string     `yaml:"amixer_card"`
	MixerControls    StringList `yaml:"amixer_controls"`
	// MixerControlAlias accepts the legacy singular key. amixer_controls
	// wins when both are present.
	MixerControlAlias StringList `yaml:"amixer_control"`
	DefaultVolume     int        `yaml:"default_volume"` // [0, 100]
}

// AppConfig is the root configuration document.
type AppConfig struct {
	NodeFriendlyName     string         `yaml:"node_friendly_name"`
	DeviceFriendlyName   string         `yaml:"device_friendly_name"`
	ReceiverFriendlyName string         `yaml:"receiver_friendly_name"`
	Registry             RegistryConfig `yaml:"registry"`
	Daemon               DaemonConfig   `yaml:"daemon"`
	Audio                AudioConfig    `yaml:"audio"`
	InterfaceName        string         `yaml:"interface_name"`
	HTTPPort             int            `yaml:"http_port"`
	StateFile            string         `yaml:"state_file"`
}

// Defaults returns the built-in configuration used when no file or
// environment overrides are present.
func Defaults() AppConfig {
	return AppConfig{
		NodeFriendlyName:     "AES67 Receiver",
		DeviceFriendlyName:   "AES67 Device",
		ReceiverFriendlyName: "AES67 Mono Receiver",
		Registry: RegistryConfig{
			Mode:              "dns-sd",
			Versions:          append([]string(nil), SupportedConnectionVersions...),
			HeartbeatInterval: 5.0,
			DNSSDTimeout:      3.0,
		},
		Daemon: DaemonConfig{
			BaseURL:            "http://127.0.0.1:8080",
			SinkID:             0,
			StatusPollInterval: 5.0,
		},
		Audio: AudioConfig{
			CaptureDevice:    "hw:2,0",
			PlaybackDevice:   "hw:1,0",
			AlsaloopBufferMS: 50,
			MixerCard:        "1",
			MixerControls:    append(StringList(nil), DefaultMixerControls...),
			DefaultVolume:    80,
		},
		HTTPPort:  8090,
		StateFile: "./state/runtime.json",
	}
}

// DescribeDiscovery returns a human sentence about the active discovery
// strategy, logged once at worker start.
func (c AppConfig) DescribeDiscovery() string {
	if c.Registry.Mode == "dns-sd" {
		return "DNS-SD discovery will browse for _nmos-registration._tcp services; " +
			"static registry URLs serve as optional fallback if provided"
	}
	return "static discovery mode limits the node to configured registry URLs; " +
		"DNS-SD is skipped entirely"
}
