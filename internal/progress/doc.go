// Package progress throttles raw tool progress events into a bounded
// stream of significant updates.
package progress
