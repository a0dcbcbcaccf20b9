package formatting

import (
	"errors"
	"testing"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1KB", 1024, false},
		{"50MB", 50 << 20, false},
		{"50 mb", 50 << 20, false},
		{"2048", 2048, false},
		{"1.5KB", 1536, false},
		{"", 0, true},
		{"MB", 0, true},
		{"10XB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBytes(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %d", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBytes(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1KB"},
		{1536, "1.5KB"},
		{50 << 20, "50MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type payload struct {
	Name string `json:"name"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"name":"Ann"}`, "Ann", false},
		{"fenced", "```json\n{\"name\":\"Bob\"}\n```", "Bob", false},
		{"prose", `Here you go: {"name":"Cy"} hope it helps`, "Cy", false},
		{"garbage", "no json here", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse[payload](tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrParseFailed) {
					t.Fatalf("expected ErrParseFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Name)
			}
		})
	}
}
