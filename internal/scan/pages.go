package scan

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidPages is wrapped by every page selection parse error.
var ErrInvalidPages = errors.New("invalid page selection")

// ParsePageRange parses selections like "1-3", "2,4,6" or "1,3-5" against a
// document of pageCount pages. Tokens are single 1-based pages or inclusive
// a-b ranges with a <= b. It returns the selected pages sorted and unique.
func ParsePageRange(ranges string, pageCount int) ([]int, error) {
	ranges = strings.TrimSpace(ranges)
	if ranges == "" {
		return nil, fmt.Errorf("%w: empty selection", ErrInvalidPages)
	}
	if pageCount < 1 {
		return nil, fmt.Errorf("%w: page count unknown", ErrInvalidPages)
	}

	var pages []int
	for _, tok := range strings.Split(ranges, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("%w: empty entry in %q", ErrInvalidPages, ranges)
		}
		lo, hi, isRange := strings.Cut(tok, "-")
		a, err := parsePage(lo, pageCount)
		if err != nil {
			return nil, err
		}
		b := a
		if isRange {
			if b, err = parsePage(hi, pageCount); err != nil {
				return nil, err
			}
			if a > b {
				return nil, fmt.Errorf("%w: range %q runs backwards", ErrInvalidPages, tok)
			}
		}
		for p := a; p <= b; p++ {
			pages = append(pages, p)
		}
	}
	slices.Sort(pages)
	return slices.Compact(pages), nil
}

// FormatPages renders pages as a compact selection, e.g. "1-3,5".
func FormatPages(pages []int) string {
	var sb strings.Builder
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(pages[i]))
		if j > i {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(pages[j]))
		}
		i = j + 1
	}
	return sb.String()
}

func parsePage(s string, pageCount int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q is not a page number", ErrInvalidPages, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a page number", ErrInvalidPages, s)
	}
	if n < 1 || n > pageCount {
		return 0, fmt.Errorf("%w: page %d is outside 1-%d", ErrInvalidPages, n, pageCount)
	}
	return n, nil
}
