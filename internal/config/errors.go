package config

import "errors"

// Sentinel error kinds. Load wraps file, env and decode failures in
// ErrLoadConfig; Validate and Service.Start report ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
