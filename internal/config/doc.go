// Package config loads, normalizes, and validates scriptreel configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCRIPTREEL_VENDOR_API_KEY. The Config type centralizes every knob the daemon
// and CLI need: storage locations, the persistence driver, worker and retry
// budgets, merge mixing levels, and the optional progress and telemetry sinks.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
