package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/rubric"
)

// editRequest is the body of every rubric and review edit. Each operation
// reads only the fields it needs.
type editRequest struct {
	Question  int    `json:"question"`
	Criterion int    `json:"criterion"`
	ID        string `json:"id"`
	Field     string `json:"field"`
	Value     string `json:"value"`
	Count     int    `json:"count"`
}

type rubricView struct {
	Rubric      *model.Rubric `json:"rubric"`
	Status      rubric.Status `json:"status"`
	TotalPoints float64       `json:"total_points"`
	CanUndo     bool          `json:"can_undo"`
	CanRedo     bool          `json:"can_redo"`
	Issues      []model.Issue `json:"issues"`
}

// rubricViewLocked must be called with h.mu held.
func (h *Handler) rubricViewLocked() rubricView {
	v := rubricView{
		Status:  h.editor.Status(),
		CanUndo: h.editor.CanUndo(),
		CanRedo: h.editor.CanRedo(),
		Issues:  h.editor.Validate(),
	}
	if r, ok := h.editor.Rubric(); ok {
		v.Rubric = &r
		v.TotalPoints = r.TotalPoints()
	}
	if v.Issues == nil {
		v.Issues = []model.Issue{}
	}
	return v
}

func (h *Handler) handleRubric(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	v := h.rubricViewLocked()
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleLoadRubric(w http.ResponseWriter, r *http.Request) {
	var rb model.Rubric
	if err := decodeJSON(r, &rb); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mu.Lock()
	h.editor.Load(rb)
	v := h.rubricViewLocked()
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleRubricEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mu.Lock()
	err := applyRubricEdit(h.editor, chi.URLParam(r, "op"), req)
	v := h.rubricViewLocked()
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func applyRubricEdit(e *rubric.Editor, op string, req editRequest) error {
	switch op {
	case "exam-name":
		return e.SetExamName(req.Value)
	case "instructions":
		return e.SetGeneralInstructions(req.Value)
	case "question-count":
		return e.SetTotalQuestionCount(req.Count)
	case "question-field":
		return e.SetQuestionField(req.Question, model.QuestionField(req.Field), req.Value)
	case "add-question":
		return e.AddQuestion()
	case "remove-question":
		return e.RemoveQuestion(req.Question)
	case "add-criterion":
		return e.AddCriterion(req.Question)
	case "remove-criterion":
		return e.RemoveCriterion(req.Question, req.Criterion)
	case "criterion-field":
		return e.SetCriterionField(req.Question, req.Criterion, model.CriterionField(req.Field), req.Value)
	}
	return fmt.Errorf("rubric %w %q", ErrUnknownOp, op)
}

func (h *Handler) handleRubricUndo(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.editor.Undo()
	v := h.rubricViewLocked()
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleRubricRedo(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.editor.Redo()
	v := h.rubricViewLocked()
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleRubricIssues(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	issues := h.editor.Validate()
	h.mu.Unlock()
	if issues == nil {
		issues = []model.Issue{}
	}
	respondJSON(w, http.StatusOK, issues)
}

func (h *Handler) handleRubricFeedback(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil {
		h.respondError(w, r, fmt.Errorf("rubric feedback: %w", ErrUnavailable))
		return
	}
	h.mu.Lock()
	rb, ok := h.editor.Rubric()
	h.mu.Unlock()
	if !ok {
		h.respondError(w, r, model.Preconditionf("no rubric loaded"))
		return
	}
	fb, err := h.advisor.RubricFeedback(r.Context(), rb)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("rubric feedback: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, fb)
}
