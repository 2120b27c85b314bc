// Package workflow runs the bounded worker pool that executes download
// jobs. Workers claim pending jobs atomically from the store, drive the
// external media tool, publish artifacts, and record terminal outcomes.
// Submission nudges an idle worker so new jobs start without waiting out
// the poll interval; shutdown abandons in-flight jobs for the next
// startup to requeue.
package workflow
