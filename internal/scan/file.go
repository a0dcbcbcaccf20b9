package scan

import (
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/gradewizard/internal/formatting"
)

// File is an uploaded document held in memory until it is processed,
// reset or superseded.
type File struct {
	Name string
	Data []byte
}

// Ext returns the lower-case extension without the dot.
func (f File) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// IsPDF reports whether the file is a PDF by extension.
func (f File) IsPDF() bool { return f.Ext() == "pdf" }

// Limits bounds what SubmitFile accepts.
type Limits struct {
	MinSize      int64
	MaxSize      int64
	MaxNameLen   int
	Extensions   []string
	ForbiddenSet string
}

// DefaultLimits accepts PDF and JPEG/PNG images between 1KB and 50MB.
func DefaultLimits() Limits {
	return Limits{
		MinSize:      1 << 10,
		MaxSize:      50 << 20,
		MaxNameLen:   255,
		Extensions:   []string{"pdf", "jpg", "jpeg", "png"},
		ForbiddenSet: `<>:"|?*`,
	}
}

// problem is a localizable input validation finding.
type problem struct {
	msgID string
	data  map[string]any
}

func (l Limits) check(f File) *problem {
	if ext := f.Ext(); !slices.Contains(l.Extensions, ext) {
		return &problem{"ErrFileExtension", map[string]any{"Ext": ext}}
	}
	size := int64(len(f.Data))
	if size < l.MinSize {
		return &problem{"ErrFileTooSmall", map[string]any{"Min": formatting.FormatBytes(l.MinSize)}}
	}
	if size > l.MaxSize {
		return &problem{"ErrFileTooLarge", map[string]any{"Max": formatting.FormatBytes(l.MaxSize)}}
	}
	if utf8.RuneCountInString(f.Name) > l.MaxNameLen {
		return &problem{"ErrFileNameLength", map[string]any{"Max": l.MaxNameLen}}
	}
	if strings.ContainsAny(f.Name, l.ForbiddenSet) {
		return &problem{"ErrFileNameChars", map[string]any{"Chars": l.ForbiddenSet}}
	}
	return nil
}
