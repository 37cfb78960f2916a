// Package workflow moves generations through the pipeline state machine.
//
// The Manager runs a pool of asset workers (one stage.Runner shared by all
// of them), a scheduler that checks each generating stage's completion
// barrier, a merge lane that claims video_completed generations and drives
// the merge orchestrator, and a sweeper that fails abandoned assets and
// reclaims merge leases whose heartbeat stopped.
//
// Every status change goes through Machine, which checks the transition
// table before issuing a guarded store update. A transition that loses a
// race is reported as not moved rather than as an error, so evaluating the
// same generation from several goroutines is safe.
//
// Stage failures consume a pipeline retry (the generation enters retrying
// and resumes the failed stage) before the generation fails. Failures in a
// merge stage resume at video_completed so the whole merge reruns.
package workflow
