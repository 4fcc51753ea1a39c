// Package sysutil holds process-level helpers shared by the entrypoint and
// the HTTP layer: log-level plumbing and permissive string coercions for
// values that arrive from the environment or from request metadata.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// SetLogLevel configures the global zerolog level from a string value.
// Supported values (case-insensitive): debug, info, warn/warning, error,
// fatal, panic. Empty or unrecognized input falls back to info.
func SetLogLevel(lvl string) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(lvl))]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

var truthy = map[string]struct{}{
	"1": {}, "true": {}, "yes": {}, "y": {}, "on": {},
}

// IsTruthy reports whether a loosely-typed flag string should be treated as
// true. Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
// Everything else, including the empty string, is false.
func IsTruthy(v string) bool {
	_, ok := truthy[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// FirstNonEmpty returns the first value whose trimmed form is non-empty,
// preserving the original (untrimmed) string. If all values are blank it
// returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
