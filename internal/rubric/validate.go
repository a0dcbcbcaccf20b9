package rubric

import (
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/gradewizard/internal/model"
)

const pointsEpsilon = 1e-9

// Validate reports advisory issues for every question of r. It never
// modifies r and its findings never block edits.
func Validate(r model.Rubric) []model.Issue {
	var issues []model.Issue
	seen := make(map[string]int, len(r.Questions))
	for i, q := range r.Questions {
		add := func(kind model.IssueKind, format string, args ...any) {
			issues = append(issues, model.Issue{
				QuestionIndex: i,
				QuestionID:    q.QuestionID,
				Kind:          kind,
				Message:       fmt.Sprintf("Question %d: ", i+1) + fmt.Sprintf(format, args...),
			})
		}

		if q.MaxPoints < 0 {
			add(model.IssueNegativeMaxPoints, "max points cannot be negative")
		}
		if sum := q.CriteriaSum(); sum > 0 && math.Abs(sum-q.MaxPoints) > pointsEpsilon {
			add(model.IssuePointsMismatch, "max points (%g) do not match the criteria total (%g)", q.MaxPoints, sum)
		}
		id := strings.TrimSpace(q.QuestionID)
		if id == "" {
			add(model.IssueEmptyID, "question id is empty")
		} else if first, dup := seen[id]; dup {
			add(model.IssueDuplicateID, "question id %q is already used by question %d", id, first+1)
		} else {
			seen[id] = i
		}
		if strings.TrimSpace(q.QuestionText) == "" {
			add(model.IssueEmptyText, "question text is empty")
		}
	}
	return issues
}
