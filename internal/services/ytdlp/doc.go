// Package ytdlp wraps the yt-dlp command-line tool behind a typed client
// with a progress callback.
package ytdlp
