// Package formatting parses and formats byte sizes and pulls JSON out of
// free-form model output.
package formatting

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var units = []string{"B", "KB", "MB", "GB", "TB"}

var bytesPattern = regexp.MustCompile(`^(\d+\.?\d*)\s*([A-Za-z]*)$`)

// FormatBytes renders n with base-1024 units, dropping a zero fraction.
// FormatBytes(50<<20) is "50MB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	size := float64(n) / math.Pow(1024, float64(i))
	s := strconv.FormatFloat(size, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s + units[i]
}

// ParseBytes parses sizes like "50MB", "1 kb" or "2048". A bare number is bytes.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}
	m := bytesPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}
	unit := strings.ToUpper(m[2])
	if unit == "" {
		return int64(value), nil
	}
	idx := slices.Index(units, unit)
	if idx == -1 {
		return 0, fmt.Errorf("unknown byte size unit %q", m[2])
	}
	return int64(value * math.Pow(1024, float64(idx))), nil
}
