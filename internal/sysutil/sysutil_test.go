package sysutil

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		" DEBUG ":   zerolog.DebugLevel, // trimmed, case-insensitive
		"info":      zerolog.InfoLevel,
		"":          zerolog.InfoLevel,
		"warn":      zerolog.WarnLevel,
		"warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"verbose":   zerolog.InfoLevel, // unknown falls back to info
		"LOG_LEVEL": zerolog.InfoLevel,
	}
	for in, want := range cases {
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("SetLogLevel(%q): global level %v, want %v", in, got, want)
		}
	}
}

func TestIsTruthy(t *testing.T) {
	// The accepted spellings cover env flags ("1", "on") and the desc
	// query parameter ("true", "yes").
	for _, v := range []string{"1", "true", "True", " YES ", "y", "on", "ON "} {
		if !IsTruthy(v) {
			t.Fatalf("IsTruthy(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "n", "no", "enabled", " \t"} {
		if IsTruthy(v) {
			t.Fatalf("IsTruthy(%q) = true", v)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want string
	}{
		{"no values", nil, ""},
		{"all blank", []string{"", "   ", "\t\n"}, ""},
		{"skips blanks, keeps original spacing", []string{" ", " header-user ", "fallback"}, " header-user "},
		{"first wins", []string{"a", "b"}, "a"},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Fatalf("%s: FirstNonEmpty(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}
