package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors shared by the editing models.
var (
	// ErrPrecondition marks a caller bug: an index or id that does not exist,
	// or an edit against a model that has no document loaded.
	ErrPrecondition = errors.New("precondition violated")
	// ErrLastQuestion is returned when removing the only remaining question.
	ErrLastQuestion = errors.New("cannot remove the last question")
	// ErrLastCriterion is returned when removing the only criterion of a question.
	ErrLastCriterion = errors.New("cannot remove the last criterion")
	// ErrInvalidCount is returned when a question count below one is requested.
	ErrInvalidCount = errors.New("question count must be at least 1")
	// ErrUnsupportedFile is returned by extractors that cannot handle a file type.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// Preconditionf wraps ErrPrecondition with a formatted reason.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// UploadType selects which extraction a scanned document goes through.
type UploadType string

const (
	UploadStudent UploadType = "student"
	UploadRubric  UploadType = "rubric"
)

// ParseUploadType validates an upload type name.
func ParseUploadType(s string) (UploadType, error) {
	switch UploadType(strings.ToLower(strings.TrimSpace(s))) {
	case UploadStudent:
		return UploadStudent, nil
	case UploadRubric:
		return UploadRubric, nil
	}
	return "", fmt.Errorf("unknown upload type %q (want student or rubric)", s)
}

// Criterion is one point-weighted grading criterion of a question.
type Criterion struct {
	Criterion string  `json:"criterion"`
	MaxPoints float64 `json:"max_points"`
}

// Question is a rubric question. MaxPoints tracks the criteria sum after
// every criterion edit.
type Question struct {
	QuestionID   string      `json:"question_id"`
	QuestionText string      `json:"question_text"`
	MaxPoints    float64     `json:"max_points"`
	QuestionType *string     `json:"question_type"`
	Criteria     []Criterion `json:"criteria"`
}

// CriteriaSum returns the sum of the criteria points.
func (q Question) CriteriaSum() float64 {
	var sum float64
	for _, c := range q.Criteria {
		sum += c.MaxPoints
	}
	return sum
}

// QuestionField names an editable scalar field of a Question.
type QuestionField string

const (
	FieldQuestionID   QuestionField = "question_id"
	FieldQuestionText QuestionField = "question_text"
	FieldMaxPoints    QuestionField = "max_points"
	FieldQuestionType QuestionField = "question_type"
)

// CriterionField names an editable field of a Criterion.
type CriterionField string

const (
	FieldCriterionText   CriterionField = "criterion"
	FieldCriterionPoints CriterionField = "max_points"
)

// Rubric is the editor-side exam rubric.
type Rubric struct {
	ExamName            string     `json:"exam_name"`
	GeneralInstructions string     `json:"general_instructions"`
	Questions           []Question `json:"questions"`
}

// TotalPoints sums MaxPoints over all questions.
func (r Rubric) TotalPoints() float64 {
	var total float64
	for _, q := range r.Questions {
		total += q.MaxPoints
	}
	return total
}

// StudentExtraction is the vision backend's reading of one student's answer sheet.
type StudentExtraction struct {
	StudentName        string             `json:"student_name"`
	Answers            map[string]string  `json:"answers"`
	CustomQuestions    map[string]string  `json:"customQuestions,omitempty"`
	Confidence         float64            `json:"confidence"`
	QuestionConfidence map[string]float64 `json:"question_confidence,omitempty"`
	NeedsReview        bool               `json:"needs_review"`
}

// RubricExtraction is the vision backend's reading of a scanned rubric.
type RubricExtraction struct {
	Rubric
	Confidence              float64 `json:"confidence"`
	ConfidenceJustification string  `json:"confidence_justification,omitempty"`
}

// CardRecord is the review state of one answer or question card.
type CardRecord struct {
	ID       string `json:"id"`
	Flagged  bool   `json:"flagged"`
	Accepted bool   `json:"accepted"`
}

// Done reports whether the card has been reviewed either way.
func (c CardRecord) Done() bool {
	return c.Flagged || c.Accepted
}

// Progress summarizes how many cards have been reviewed.
type Progress struct {
	Done    int `json:"done"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// IssueKind classifies an advisory rubric validation finding.
type IssueKind string

const (
	IssueNegativeMaxPoints IssueKind = "negative_max_points"
	IssuePointsMismatch    IssueKind = "points_mismatch"
	IssueEmptyID           IssueKind = "empty_id"
	IssueEmptyText         IssueKind = "empty_text"
	IssueDuplicateID       IssueKind = "duplicate_id"
)

// Issue is one advisory validation finding. Issues never block edits.
type Issue struct {
	QuestionIndex int       `json:"question_index"`
	QuestionID    string    `json:"question_id"`
	Kind          IssueKind `json:"kind"`
	Message       string    `json:"message"`
}

// Change is published to observers after every committed edit.
type Change struct {
	Source string `json:"source"`
	Op     string `json:"op"`
}

// ExtractRequest carries one upload to an extraction backend.
type ExtractRequest struct {
	UploadType         UploadType
	Filename           string
	Data               []byte
	CustomInstructions string
	Pages              string
}

// ProcessedDocument is an entry of the backend's saved extraction sessions.
type ProcessedDocument struct {
	DocumentID       string     `json:"document_id"`
	OriginalFilename string     `json:"original_filename"`
	UploadType       UploadType `json:"upload_type"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Profile is a grading profile. Only the fields the client relies on are typed.
type Profile struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// QuestionType is a backend-defined question category.
type QuestionType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlaceholderID returns the generated id of the k-th question (1-based).
func PlaceholderID(k int) string {
	return "Q" + strconv.Itoa(k)
}

// SortQuestionIDs orders ids naturally so that Q2 sorts before Q10.
func SortQuestionIDs(ids []string) {
	slices.SortFunc(ids, compareQuestionIDs)
}

func compareQuestionIDs(a, b string) int {
	pa, na, oka := splitNumericSuffix(a)
	pb, nb, okb := splitNumericSuffix(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	switch {
	case oka != okb:
		if okb {
			return -1
		}
		return 1
	case na != nb:
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func splitNumericSuffix(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}
