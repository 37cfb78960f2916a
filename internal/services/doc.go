// Package services defines shared error markers and context helpers consumed
// by the pipeline stages, the workflow manager, and the external capability
// adapters.
//
// Key responsibilities:
//   - Context helpers that stamp generation IDs, asset IDs, stage names, worker
//     names, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (transient vs permanent) without string matching.
//
// Use these helpers when wiring new stage logic so retry decisions and
// observability stay uniform across the pipeline.
package services
