// Package utils holds tiny parsing helpers shared by the HTTP and
// repository layers. Nothing in here knows about nudges or storage.
package utils

import "strconv"

// AtoiDefault parses s as an int, falling back to def when s is empty or not
// a plain base-10 integer. Input is not trimmed.
//
//	utils.AtoiDefault("42", 0) // 42
//	utils.AtoiDefault("", 10)  // 10
//	utils.AtoiDefault("x", 5)  // 5
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ClampLimit parses a page-size string and bounds the result to [1, max].
// Unparseable or empty input yields def; max <= 0 disables the upper bound.
//
//	utils.ClampLimit("50", 20, 100)  // 50
//	utils.ClampLimit("", 20, 100)    // 20
//	utils.ClampLimit("999", 20, 100) // 100
//	utils.ClampLimit("-3", 20, 100)  // 1
func ClampLimit(s string, def, max int) int {
	n := AtoiDefault(s, def)
	if n < 1 {
		n = 1
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
