package config

import "errors"

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by
	// unknown keys. Use errors.Is(err, ErrUnknownConfigField) instead of
	// string matching.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrInvalidConfig classifies validation failures after merging.
	ErrInvalidConfig = errors.New("invalid configuration")
)
