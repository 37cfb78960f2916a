// Package stage produces the media assets of a generation.
//
// PlanAssets turns segmented scenes into the audio, image and video asset
// rows persisted when a generation starts. A Runner processes one claimed
// asset at a time: it first tries the find-or-generate lookup, then
// dispatches to the Generator registered for the asset's kind and records
// the outcome. Transient vendor failures are rescheduled with exponential
// backoff against a persisted retry budget; permanent failures fail the
// asset immediately. Results for generations that reached a terminal status
// while the vendor was working are discarded.
package stage
