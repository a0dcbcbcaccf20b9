package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when content holds no parseable JSON.
var ErrParseFailed = errors.New("failed to parse response")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Parse decodes content as JSON into T. Model output that wraps the JSON in a
// markdown fence or surrounds it with prose is unwrapped first.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	if m := fencePattern.FindStringSubmatch(content); len(m) >= 2 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &result); err == nil {
			return result, nil
		}
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, truncate(content, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
