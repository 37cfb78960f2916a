// Package daemonctl starts, stops and inspects the scriptreeld process on
// behalf of the CLI.
package daemonctl
