package config

import (
	"errors"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	// ErrUnknownStore is joined with ErrInvalidConfig when store_driver names
	// no adapter.
	ErrUnknownStore = errors.New("unknown store driver")
)
