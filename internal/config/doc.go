// Package config provides configuration loading and validation for the fan
// voting service. It handles YAML-based configuration with struct validation
// covering the HTTP API, audio capture, acoustic codec, attendance
// verification, storage, and tally coordination.
package config
