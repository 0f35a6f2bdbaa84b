// Package config defines Floodgate's YAML configuration: the gateway
// server, logging, metrics, rate-limit policies, and snapshot storage.
//
// Loading follows a fixed sequence: parse YAML, apply defaults, apply
// FLOODGATE_* environment overrides, validate. Validation collects every
// field error before failing so a broken file is fixed in one pass.
//
// The Watcher provides debounced hot reload of the configuration file via
// fsnotify, used at runtime to swap rate-limit policies without a restart.
package config
