// Package config loads the DroidRelay YAML configuration, applies
// environment overrides and fills defaults for every optional field.
package config
