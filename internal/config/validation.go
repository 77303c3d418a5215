package config

import (
	"fmt"
	"net/url"
	"slices"
)

// Validate checks the merged configuration for out-of-range values.
func Validate(cfg AppConfig) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch cfg.Registry.Mode {
	case "dns-sd", "static":
	default:
		return fail("registry.mode must be dns-sd or static, got %q", cfg.Registry.Mode)
	}
	if cfg.Registry.Mode == "static" && len(cfg.Registry.StaticURLs) == 0 {
		return fail("registry.mode=static requires registry.static_urls")
	}
	for _, raw := range cfg.Registry.StaticURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fail("registry.static_urls entry %q is not an absolute URL", raw)
		}
	}
	if len(cfg.Registry.Versions) == 0 {
		return fail("registry.versions must not be empty")
	}
	for _, v := range cfg.Registry.Versions {
		if !slices.Contains(SupportedConnectionVersions, v) {
			return fail("registry.versions entry %q is not supported (supported: %v)", v, SupportedConnectionVersions)
		}
	}
	if cfg.Registry.HeartbeatInterval <= 0 {
		return fail("registry.heartbeat_interval must be > 0")
	}
	if cfg.Registry.DNSSDTimeout <= 0 {
		return fail("registry.dns_sd_timeout must be > 0")
	}

	if _, err := url.Parse(cfg.Daemon.BaseURL); err != nil || cfg.Daemon.BaseURL == "" {
		return fail("daemon.base_url %q is not a valid URL", cfg.Daemon.BaseURL)
	}
	if cfg.Daemon.SinkID < 0 {
		return fail("daemon.sink_id must be >= 0")
	}
	if cfg.Daemon.StatusPollInterval <= 0 {
		return fail("daemon.status_poll_interval must be > 0")
	}

	if cfg.Audio.AlsaloopBufferMS < 10 || cfg.Audio.AlsaloopBufferMS > 500 {
		return fail("audio.alsaloop_buffer_ms must be within [10, 500]")
	}
	if cfg.Audio.DefaultVolume < 0 || cfg.Audio.DefaultVolume > 100 {
		return fail("audio.default_volume must be within [0, 100]")
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return fail("http_port must be within [1, 65535]")
	}
	if cfg.StateFile == "" {
		return fail("state_file must not be empty")
	}
	return nil
}
