// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs the binary and decodes streams and format metadata. Result
// helpers answer the questions the splice stage asks: frame dimensions (with
// a 1920x1080 fallback), whether audio is present, and clip duration.
package ffprobe
