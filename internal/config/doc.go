// Package config loads, normalizes, and validates the storyart TOML
// configuration file.
package config
