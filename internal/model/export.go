package model

import "time"

// WizardRubric is the rubric shape the wizard and the grading endpoint use.
// It names fields differently from Rubric; convert with the wizard adapter.
type WizardRubric struct {
	ID          string           `json:"id,omitempty"`
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description,omitempty"`
	Questions   []WizardQuestion `json:"questions" validate:"required,min=1,dive"`
}

// WizardQuestion is one question of a WizardRubric.
type WizardQuestion struct {
	ID       string            `json:"id" validate:"required"`
	Prompt   string            `json:"prompt"`
	MaxScore float64           `json:"maxScore" validate:"gte=0"`
	Criteria []WizardCriterion `json:"criteria,omitempty" validate:"omitempty,dive"`
}

// WizardCriterion is one criterion of a WizardQuestion.
type WizardCriterion struct {
	ID          string  `json:"id" validate:"required"`
	Description string  `json:"description"`
	Points      float64 `json:"points" validate:"gte=0"`
}

// Answers holds every student's responses for one grading run.
type Answers struct {
	ProfileID   *string      `json:"profileId"`
	Submissions []Submission `json:"submissions" validate:"required,dive"`
}

// Submission is one student's set of responses.
type Submission struct {
	StudentID string     `json:"studentId" validate:"required"`
	Responses []Response `json:"responses" validate:"required,dive"`
}

// Response is a single answer. Answer holds a string, number, bool or nil.
type Response struct {
	QuestionID string         `json:"questionId" validate:"required"`
	Answer     any            `json:"answer" validate:"scalar"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Results is the grading outcome returned by the backend.
type Results struct {
	ProfileID    string       `json:"profileId"`
	AverageScore float64      `json:"averageScore"`
	Items        []ResultItem `json:"items" validate:"required,dive"`
	GeneratedAt  *time.Time   `json:"generatedAt,omitempty"`
}

// ResultItem is one student's graded result.
type ResultItem struct {
	StudentID  string           `json:"studentId" validate:"required"`
	TotalScore float64          `json:"totalScore"`
	Feedback   *string          `json:"feedback,omitempty"`
	Breakdown  []BreakdownEntry `json:"breakdown,omitempty" validate:"omitempty,dive"`
}

// BreakdownEntry is the per-question score of a ResultItem.
type BreakdownEntry struct {
	QuestionID string   `json:"questionId" validate:"required"`
	Score      float64  `json:"score"`
	MaxScore   *float64 `json:"maxScore,omitempty"`
	Feedback   *string  `json:"feedback,omitempty"`
}

// GradeRequest is the body posted to the exam grading endpoint.
type GradeRequest struct {
	ExamRubric     WizardRubric   `json:"exam_rubric"`
	Submissions    []Submission   `json:"submissions"`
	GradingContext GradingContext `json:"grading_context"`
}

// GradingContext carries the profile the grader should apply.
type GradingContext struct {
	ProfileID string `json:"profile_id"`
}
