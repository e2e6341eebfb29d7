// Package notifications pushes run summaries and failures to ntfy.
//
// The topic URL comes from config.toml. When it is empty the package returns a
// no-op Service, so callers never branch on whether notifications are enabled.
package notifications
