// Package rubric edits exam rubrics: questions with point-weighted criteria,
// undo/redo, and advisory validation.
package rubric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/gradewizard/internal/model"
)

// Default points for generated questions and criteria.
const (
	DefaultQuestionPoints  = 10
	DefaultCriterionPoints = 1
)

// NewQuestion returns the placeholder question inserted at 1-based position k.
func NewQuestion(k int) model.Question {
	return model.Question{
		QuestionID: model.PlaceholderID(k),
		MaxPoints:  DefaultQuestionPoints,
		Criteria:   []model.Criterion{{MaxPoints: DefaultQuestionPoints}},
	}
}

// ParsePoints coerces user input to a point value. Anything that does not
// parse as a finite number is 0.
func ParsePoints(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SyncPoints sets q.MaxPoints to the sum of its criteria.
func SyncPoints(q *model.Question) {
	q.MaxPoints = q.CriteriaSum()
}

// ApplyQuestionField sets one scalar field of q. Setting max_points does not
// touch the criteria.
func ApplyQuestionField(q *model.Question, field model.QuestionField, value string) error {
	switch field {
	case model.FieldQuestionID:
		q.QuestionID = value
	case model.FieldQuestionText:
		q.QuestionText = value
	case model.FieldMaxPoints:
		q.MaxPoints = ParsePoints(value)
	case model.FieldQuestionType:
		if value == "" {
			q.QuestionType = nil
		} else {
			v := value
			q.QuestionType = &v
		}
	default:
		return model.Preconditionf("unknown question field %q", field)
	}
	return nil
}

// AppendCriterion adds an empty criterion worth DefaultCriterionPoints and
// re-syncs the question total.
func AppendCriterion(q *model.Question) {
	q.Criteria = append(q.Criteria, model.Criterion{MaxPoints: DefaultCriterionPoints})
	SyncPoints(q)
}

// DeleteCriterion removes criterion c and re-syncs the question total.
// The last criterion of a question cannot be removed.
func DeleteCriterion(q *model.Question, c int) error {
	if err := checkCriterion(q, c); err != nil {
		return err
	}
	if len(q.Criteria) == 1 {
		return fmt.Errorf("question %s: %w", q.QuestionID, model.ErrLastCriterion)
	}
	q.Criteria = append(q.Criteria[:c], q.Criteria[c+1:]...)
	SyncPoints(q)
	return nil
}

// ApplyCriterionField sets one field of criterion c and re-syncs the total.
func ApplyCriterionField(q *model.Question, c int, field model.CriterionField, value string) error {
	if err := checkCriterion(q, c); err != nil {
		return err
	}
	switch field {
	case model.FieldCriterionText:
		q.Criteria[c].Criterion = value
	case model.FieldCriterionPoints:
		q.Criteria[c].MaxPoints = ParsePoints(value)
	default:
		return model.Preconditionf("unknown criterion field %q", field)
	}
	SyncPoints(q)
	return nil
}

// Renumber rewrites every question id as Q1..QN in order.
func Renumber(r *model.Rubric) {
	for i := range r.Questions {
		r.Questions[i].QuestionID = model.PlaceholderID(i + 1)
	}
}

func checkCriterion(q *model.Question, c int) error {
	if c < 0 || c >= len(q.Criteria) {
		return model.Preconditionf("criterion index %d out of range [0,%d) in question %s", c, len(q.Criteria), q.QuestionID)
	}
	return nil
}

func checkQuestion(r *model.Rubric, i int) error {
	if i < 0 || i >= len(r.Questions) {
		return model.Preconditionf("question index %d out of range [0,%d)", i, len(r.Questions))
	}
	return nil
}
