// Command hoist is the CLI companion to hoistd. It talks to the daemon's
// HTTP API to submit downloads, inspect the job queue, toggle watched and
// starred flags, and remove finished jobs.
package main
