// Package daemon coordinates the long-running hoist process.
//
// It wires configuration, job storage, the worker pool, the transcode pool,
// and the HTTP surface into a single lifecycle with flock-based locking to
// prevent multiple instances. Startup requeues jobs a previous process left
// running; shutdown abandons in-flight downloads for the next startup to
// recover.
//
// Keep orchestration logic here: job semantics live in their respective
// packages while the daemon focuses on startup, shutdown, and the HTTP
// endpoints that expose them.
package daemon
