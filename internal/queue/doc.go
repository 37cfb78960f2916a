// Package queue persists generations, their media assets, segmented scenes
// and merge operations in SQLite (default) or Postgres.
//
// Every status change is an update-if-status-matches: callers name the status
// they expect and learn whether they won the race. Terminal generations
// (completed, failed, retrieval_failed, cancelled) reject mutation with
// services.ErrTerminal and keep their updated_at untouched.
//
// Schema changes bump schemaVersion in schema.go; the database is working
// state for in-flight jobs and is cleared to adopt a new schema.
package queue
