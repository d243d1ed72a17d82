// Package config loads engine options for binaries embedding crank. Plain
// option structs remain the engine's public API; this loader is a
// convenience layering environment variables and an optional YAML file on
// top of the defaults.
package config
