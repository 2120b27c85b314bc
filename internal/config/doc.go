// Package config loads and validates the hoist TOML configuration.
package config
