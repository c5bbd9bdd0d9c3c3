// Package fetch streams remote artifacts to disk.
//
// A Fetcher performs a single streaming GET per call and never retries. While
// the body drains it reports byte progress to an Observer. The body is either
// written to a file (via a temporary file and an atomic rename) or piped
// through a gzip+tar extractor that drops a fixed number of leading path
// segments from every entry.
//
// # Options
//
// Options is the transport bag handed down from the build configuration:
// extra headers, proxy, user agent and a timeout. It is a value type. Methods
// that add headers return a new value with its own header map, so deriving an
// authenticated variant never changes the caller's copy:
//
//	authed := opts.WithHeader("Authorization", "token "+tok)
//	// opts is unchanged
//
// # Progress
//
// Observers receive (received, total) after every chunk. total is -1 when the
// server did not declare a length; Percent then reports ok=false and callers
// should not print a percentage.
package fetch
