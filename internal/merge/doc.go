// Package merge renders a generation's scene clips and mapped audio into
// the final video.
//
// BuildPlan orders segments by scene number and resolves each segment's
// visual source (the scene video, else a reference still) and its audio
// layers. The Orchestrator executes a plan in three phases (mix, lipsync,
// combine) through a Renderer, reporting monotonic progress on the merge
// operation record, then uploads the output and confirms it can be fetched.
//
// FFmpegRenderer is the default Renderer. Its argument and filter graph
// builders are pure functions so they can be tested without ffmpeg.
package merge
