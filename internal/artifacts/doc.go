// Package artifacts manages job output on the filesystem: working
// directories during downloads, side-files written after the tool
// finishes, thumbnail deduplication, title-derived directory renames,
// and the file manifest published for completed jobs.
package artifacts
