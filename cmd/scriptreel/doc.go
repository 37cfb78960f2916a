// Command scriptreel is the operator CLI: it submits scripts to the daemon,
// inspects and steers generations, follows progress and logs, and runs
// local script tooling (parse, storyboard) that needs no daemon.
package main
