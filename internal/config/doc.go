// Package config loads, normalizes, and validates courtclip configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file when present, and applies
// environment overrides such as HB_TTL_SECONDS, THIRD_LOGO_ENABLED and DRY_RUN.
// The Config type centralizes every knob the finishing run, the supervisor and
// the CLI need. A loaded Config is passed by pointer into constructors and never
// mutated afterwards; WithOverrides derives adjusted copies.
package config
