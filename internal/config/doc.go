// Package config loads and validates the scalarboard YAML configuration
// and supports hot-reload via filesystem watching. Defaults are applied
// for absent fields so a minimal config file stays minimal.
package config
