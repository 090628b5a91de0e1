package utils

import "fmt"

// Str renders a loosely typed JSON value as a string; nil becomes "".
func Str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
