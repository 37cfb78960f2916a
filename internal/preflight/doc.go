// Package preflight provides readiness checks for the filesystem paths and
// external services the pipeline depends on.
//
// The daemon runs RunAll at startup and refuses to start when a directory
// is unusable; the gateway check only warns. The CLI "scriptreel status"
// command and the daemon status endpoint reuse CheckSystemDeps to report the
// ffmpeg toolchain.
package preflight
