// Package api is the entry point layer between transports and the pipeline.
//
// PipelineService implements the generation operations (start, status,
// cancel, list, assets, quality tier and progress subscription) on top of the
// queue store and the workflow manager. The daemon's HTTP handlers and the
// CLI's daemon client both speak the DTOs defined here.
//
// # Key Types
//
// Generation: transport representation of a generation with progress,
// pipeline retries and the merged output when one exists.
//
// Asset: one planned, generated, imported or reused media asset.
//
// WorkflowStatus and DaemonStatus: worker pool state, queue stats, generator
// health and dependency availability.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses and kinds are exposed as their
// lowercase string values. Timestamps use RFC3339 with milliseconds.
// Start request bodies are validated against an embedded JSON schema before
// they are decoded.
package api
