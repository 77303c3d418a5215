package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/aes67-nmos/internal/log"
)

// EnvConfigPath selects the config file when no --config flag is given.
const EnvConfigPath = "AES67_NMOS_CONFIG"

// EnvHTTPPort overrides the HTTP listen port regardless of file contents.
const EnvHTTPPort = "AES67_NMOS_HTTP_PORT"

// Loader resolves an AppConfig with precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a configuration loader. An empty path falls back to
// the AES67_NMOS_CONFIG environment variable, then to "config.yaml" if
// that file exists.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: strings.TrimSpace(configPath)}
}

// Load resolves the effective configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	defaultControls := append(StringList(nil), cfg.Audio.MixerControls...)

	path := l.effectivePath()
	if path != "" {
		if err := l.mergeFile(&cfg, path); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// The legacy singular key applies only when the plural form was not
	// set by the file.
	if len(cfg.Audio.MixerControlAlias) > 0 {
		if slices.Equal(cfg.Audio.MixerControls, defaultControls) {
			cfg.Audio.MixerControls = cfg.Audio.MixerControlAlias
		}
		cfg.Audio.MixerControlAlias = nil
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) effectivePath() string {
	if l.configPath != "" {
		return l.configPath
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func (l *Loader) mergeFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// An absent default file is not an error; explicit paths are
			// checked by the caller via the returned error below.
			if l.configPath == "" && os.Getenv(EnvConfigPath) == "" {
				return nil
			}
		}
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty document
		}
		// KnownFields violations surface as a yaml.TypeError whose entries
		// carry the decoder's "field ... not found in type ..." message.
		// Plain type mismatches stay unclassified.
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			for _, msg := range typeErr.Errors {
				if strings.Contains(msg, "not found in type") {
					return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
				}
			}
		}
		return err
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(EnvHTTPPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn().
				Str("key", EnvHTTPPort).
				Str("value", v).
				Msg("invalid port in environment variable, keeping configured value")
			return
		}
		cfg.HTTPPort = port
	}
}
