// Package progress fans generation progress out to local subscribers and
// optional external sinks.
//
// A Hub hands out one Job per generation. Job.Update persists the progress
// columns through a Recorder, logs sampled updates, and publishes an Event to
// every subscriber of that generation plus each configured Sink (Redis
// pub/sub, Google Pub/Sub). Sink failures are logged and never block the
// pipeline.
package progress
