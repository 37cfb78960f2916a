// Package logstream prints daemon logs for the CLI. It reads structured
// events from the daemon API and falls back to tailing the daemon's log file
// when the API cannot be reached.
package logstream
