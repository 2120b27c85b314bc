// Package jobs persists download jobs in SQLite and implements the atomic
// claim that hands a pending job to exactly one worker.
package jobs
