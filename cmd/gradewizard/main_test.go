package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/pavelanni/gradewizard/internal/backend"
	"github.com/pavelanni/gradewizard/internal/handler"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/wizard"
)

var (
	_ scan.Slicer                = (*backend.Client)(nil)
	_ scan.PageCounter           = (*backend.Client)(nil)
	_ handler.ProfileService     = (*backend.Client)(nil)
	_ handler.QuestionTypeSource = (*backend.Client)(nil)
	_ handler.DocumentSource     = (*backend.Client)(nil)
)

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		files     int
		want      int
	}{
		{"capped by files", 8, 3, 3},
		{"requested", 2, 10, 2},
		{"single file", 0, 1, 1},
		{"no files", 4, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workerCount(tt.requested, tt.files); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestNewExtractionWithBackend(t *testing.T) {
	tests := []struct {
		name     string
		presplit bool
		options  int
	}{
		{"service only", false, 2},
		{"service slices pages", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set("backend-url", "http://grader.test")
			v.Set("presplit", tt.presplit)
			v.Set("scan-timeout", scan.DefaultTimeout)

			ex, err := newExtraction(context.Background(), v, slog.Default())
			if err != nil {
				t.Fatalf("newExtraction: %v", err)
			}
			if ex.backend == nil {
				t.Fatal("expected backend client")
			}
			if ex.extractor != scan.Extractor(ex.backend) {
				t.Error("expected the backend client to extract")
			}
			if len(ex.options) != tt.options {
				t.Errorf("expected %d options, got %d", tt.options, len(ex.options))
			}
		})
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRubric(t *testing.T) {
	wizardRubric := `{"title":"Bio","questions":[{"id":"Q1","prompt":"Cells?","maxScore":4}]}`
	editorRubric := `{"exam_name":"Bio","questions":[{"question_id":"1","question_text":"Cells?","max_points":4,"criteria":[{"criterion":"names organelles","max_points":4}]}]}`

	flow := wizard.New()
	if err := loadRubric(flow, writeFile(t, "w.json", wizardRubric), false); err != nil {
		t.Fatalf("grading schema: %v", err)
	}
	if r := flow.State().Rubric; r == nil || r.Title != "Bio" || len(r.Questions) != 1 {
		t.Errorf("unexpected rubric %+v", r)
	}

	flow = wizard.New()
	if err := loadRubric(flow, writeFile(t, "e.json", editorRubric), true); err != nil {
		t.Fatalf("editor schema: %v", err)
	}
	if r := flow.State().Rubric; r == nil || r.Title != "Bio" {
		t.Errorf("expected adopted editor rubric, got %+v", r)
	}

	if err := loadRubric(wizard.New(), writeFile(t, "bad.json", `{"title":""}`), false); err == nil {
		t.Error("expected validation error for an empty rubric")
	}
	if err := loadRubric(wizard.New(), filepath.Join(t.TempDir(), "missing.json"), false); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestRubricValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		rubric  string
		wantErr bool
		want    string
	}{
		{
			name:   "clean",
			rubric: `{"exam_name":"Bio","questions":[{"question_id":"1","question_text":"Cells?","max_points":4,"criteria":[{"criterion":"names organelles","max_points":4}]}]}`,
			want:   "no issues",
		},
		{
			name:    "empty question",
			rubric:  `{"exam_name":"Bio","questions":[{"question_id":"","question_text":"","max_points":0,"criteria":[{"criterion":"","max_points":0}]}]}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			root := rootCmd()
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs([]string{"rubric", "validate", writeFile(t, "r.json", tt.rubric)})
			err := root.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v (output %q)", tt.wantErr, err, out.String())
			}
			if tt.want != "" && !strings.Contains(out.String(), tt.want) {
				t.Errorf("expected output to contain %q, got %q", tt.want, out.String())
			}
		})
	}
}
