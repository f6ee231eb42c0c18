// Package utils provides utility functions for the application.
package utils

import "strings"

func ToPtr[T any](v T) *T {
	return &v
}

// StringValue returns the trimmed value of s, or "" when s is nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// IsBlank reports whether s is nil or only whitespace.
func IsBlank(s *string) bool {
	return StringValue(s) == ""
}
