// Package config loads skimmer settings.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, and SKIMMER_* environment variables (SKIMMER_CALLSIGN,
// SKIMMER_TIMEOUTS_CONNECT, ...). Files are checked against an embedded CUE
// schema before they are merged, so typos in keys fail loudly instead of
// being ignored.
package config
