package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/gradewizard/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

const maxInstructionRunes = 2000

var (
	customInstructionsRegex = regexp.MustCompile(`(?i)</?\s*custom-instructions\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Data holds template data for extraction prompts.
type Data struct {
	Filename     string
	Instructions string
}

// Set is a parsed group of extraction prompts, one per upload type.
type Set struct {
	templates map[model.UploadType]*template.Template
}

// Load parses templates/student.txt and templates/rubric.txt from fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{templates: make(map[model.UploadType]*template.Template)}
	for _, kind := range []model.UploadType{model.UploadStudent, model.UploadRubric} {
		name := "templates/" + string(kind) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(string(kind)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		s.templates[kind] = tmpl
	}
	return s, nil
}

// Default returns the embedded prompt set, parsed once.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(embedded)
	})
	return defaultSet, defaultErr
}

// Build renders the system prompt for kind. Custom instructions are
// sanitized so they cannot close the tag that fences them.
func (s *Set) Build(kind model.UploadType, data Data) (string, error) {
	tmpl, ok := s.templates[kind]
	if !ok {
		return "", fmt.Errorf("no prompt for upload type %q", kind)
	}
	data.Instructions = SanitizeInstructions(data.Instructions)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeInstructions strips prompt fence tags and truncates long input.
func SanitizeInstructions(s string) string {
	s = customInstructionsRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxInstructionRunes {
		runes := []rune(s)
		s = string(runes[:maxInstructionRunes]) + "\n[Instructions truncated due to length]"
	}
	return s
}
