// Package logging configures structured slog output for shadowfinder.
// Server processes log JSON lines to a size-rotated file under
// ~/.shadowfinder/logs/, optionally mirrored to stderr.
package logging
