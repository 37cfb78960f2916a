// Package daemon coordinates the long-running scriptreel process.
//
// It wires configuration, the generation store, the workflow manager and the
// HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. On start it returns work interrupted by a previous
// process to a resting state and runs the preflight checks.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown and the transport surface.
package daemon
