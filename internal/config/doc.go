// Package config loads the classdb command configuration from a TOML file.
package config
