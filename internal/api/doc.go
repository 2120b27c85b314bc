// Package api implements the job operations shared by the HTTP surface and
// the CLI, plus the wire-format types they exchange.
//
// JobService validates submissions, guards against duplicate live downloads,
// applies the flag rules (starring implies watched), and couples job removal
// to artifact cleanup. DTOs use camelCase JSON tags; internal enums are
// exposed as lowercase strings and timestamps as RFC3339 with milliseconds.
package api
