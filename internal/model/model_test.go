package model

import (
	"errors"
	"slices"
	"testing"
)

func TestSortQuestionIDs(t *testing.T) {
	ids := []string{"Q10", "Q2", "Q1", "intro", "Q3b", "Q11"}
	SortQuestionIDs(ids)
	want := []string{"Q1", "Q2", "Q10", "Q11", "Q3b", "intro"}
	if !slices.Equal(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}
}

func TestParseUploadType(t *testing.T) {
	tests := []struct {
		in      string
		want    UploadType
		wantErr bool
	}{
		{"student", UploadStudent, false},
		{" Rubric ", UploadRubric, false},
		{"answers", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUploadType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUploadType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestQuestionSums(t *testing.T) {
	r := Rubric{Questions: []Question{
		{MaxPoints: 4, Criteria: []Criterion{{MaxPoints: 1}, {MaxPoints: 3}}},
		{MaxPoints: 6, Criteria: []Criterion{{MaxPoints: 6}}},
	}}
	if got := r.Questions[0].CriteriaSum(); got != 4 {
		t.Errorf("expected criteria sum 4, got %v", got)
	}
	if got := r.TotalPoints(); got != 10 {
		t.Errorf("expected total 10, got %v", got)
	}
}

func TestPreconditionf(t *testing.T) {
	err := Preconditionf("question index %d out of range", 7)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if got := PlaceholderID(3); got != "Q3" {
		t.Errorf("expected Q3, got %q", got)
	}
}
