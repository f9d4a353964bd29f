package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360/ngsiadapter/pkg/timestamp"
)

var leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseFloat reads the longest numeric prefix of s after leading whitespace,
// so "0.01, 0.02" yields 0.01. It reports false when s has no numeric prefix.
func ParseFloat(s string) (float64, bool) {
	m := leadingFloat.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FirstLine returns s up to its first newline.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Field returns the i-th element of s split by sep, or "" when absent.
func Field(s, sep string, i int) string {
	parts := strings.Split(s, sep)
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// FormatValue renders an attribute value the way it travels on the wire.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return timestamp.String(t)
	case bool:
		return strconv.FormatBool(t)
	case []float64:
		parts := make([]string, len(t))
		for i, f := range t {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case interface{ String() string }:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
