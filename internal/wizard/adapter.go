package wizard

import (
	"fmt"
	"strings"

	"github.com/pavelanni/gradewizard/internal/model"
)

// FromEditor converts an editor rubric to the wizard schema. Criteria get
// ids of the form "<question id>-C<n>". Question types have no wizard field
// and are dropped.
func FromEditor(r model.Rubric) model.WizardRubric {
	w := model.WizardRubric{
		Title:       r.ExamName,
		Description: r.GeneralInstructions,
		Questions:   make([]model.WizardQuestion, 0, len(r.Questions)),
	}
	for _, q := range r.Questions {
		wq := model.WizardQuestion{
			ID:       q.QuestionID,
			Prompt:   q.QuestionText,
			MaxScore: q.MaxPoints,
		}
		for i, c := range q.Criteria {
			wq.Criteria = append(wq.Criteria, model.WizardCriterion{
				ID:          fmt.Sprintf("%s-C%d", q.QuestionID, i+1),
				Description: c.Criterion,
				Points:      c.MaxPoints,
			})
		}
		w.Questions = append(w.Questions, wq)
	}
	return w
}

// ToEditor converts a wizard rubric to the editor schema. A question without
// criteria gets a single unnamed criterion worth its max score, keeping the
// editor's one-criterion minimum and its points sum.
func ToEditor(w model.WizardRubric) model.Rubric {
	r := model.Rubric{
		ExamName:            w.Title,
		GeneralInstructions: w.Description,
		Questions:           make([]model.Question, 0, len(w.Questions)),
	}
	for _, wq := range w.Questions {
		q := model.Question{
			QuestionID:   wq.ID,
			QuestionText: wq.Prompt,
			MaxPoints:    wq.MaxScore,
		}
		for _, c := range wq.Criteria {
			q.Criteria = append(q.Criteria, model.Criterion{Criterion: c.Description, MaxPoints: c.Points})
		}
		if len(q.Criteria) == 0 {
			q.Criteria = []model.Criterion{{MaxPoints: wq.MaxScore}}
		}
		r.Questions = append(r.Questions, q)
	}
	return r
}

// SubmissionFromExtraction turns a reviewed student extraction into a
// grading submission keyed by the student name. Responses follow natural
// question order.
func SubmissionFromExtraction(s model.StudentExtraction) model.Submission {
	qids := make([]string, 0, len(s.Answers))
	for qid := range s.Answers {
		qids = append(qids, qid)
	}
	model.SortQuestionIDs(qids)

	sub := model.Submission{
		StudentID: strings.TrimSpace(s.StudentName),
		Responses: make([]model.Response, 0, len(qids)),
	}
	for _, qid := range qids {
		sub.Responses = append(sub.Responses, model.Response{QuestionID: qid, Answer: s.Answers[qid]})
	}
	return sub
}
