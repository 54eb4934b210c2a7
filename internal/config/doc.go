// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional YAML file. Every setting has a
// default, so the relay starts with no configuration at all; RELAY_-prefixed
// variables override file values.
package config
