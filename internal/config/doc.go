// Package config loads collector configuration from YAML files.
//
// Loading is split into Load, applyDefaults, and Validate. ${VAR}
// references in the file are expanded from the environment before parsing.
package config
