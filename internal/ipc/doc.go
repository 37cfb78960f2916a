// Package ipc is the CLI side of the daemon's HTTP API.
//
// Client wraps every /api route with typed calls that decode the shared api
// DTOs. Failed calls surface as *Error carrying the daemon's error kind and
// hint, and connection failures are recognisable with IsUnavailable so
// commands can tell the user to start the daemon instead of printing a raw
// dial error.
package ipc
