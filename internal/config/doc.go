// Package config loads runtime settings for the hub and the peer.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// RELAYCHAT_* environment variables (nested keys use underscores, for example
// RELAYCHAT_RATE_LIMIT_BURST). The file is the one named by RELAYCHAT_CONFIG,
// or relaychat.yaml in the working directory when present. Every loaded
// Config is sanitized so zero or negative values fall back to defaults.
package config
