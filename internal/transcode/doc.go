// Package transcode re-encodes downloaded media into mp4 with ffmpeg.
// A small worker pool drains a submission queue fed by the workflow;
// source files are replaced in place and job manifests rewritten once
// all of a job's files are processed.
package transcode
