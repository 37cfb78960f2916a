// Package logging assembles the structured slog loggers used across
// scriptreel.
//
// It owns the console and JSON handlers, rotating file output, and the
// context helpers that tag log lines with generation IDs, asset IDs, stages
// and correlation IDs. StreamHub keeps a bounded buffer of recent events for
// the daemon's log endpoint, and ProgressSampler thins out repetitive
// progress lines.
package logging
