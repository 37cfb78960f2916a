// Package notifications delivers pipeline milestones via pluggable notifiers.
//
// The default implementation publishes to the ntfy topic configured under
// [progress] and degrades to a no-op when no topic is set. Workflow code
// depends only on the Service interface.
package notifications
