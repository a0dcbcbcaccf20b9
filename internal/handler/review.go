package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/review"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/wizard"
)

type reviewView struct {
	Loaded     bool               `json:"loaded"`
	Session    string             `json:"session,omitempty"`
	Document   *review.Document   `json:"document,omitempty"`
	Cards      []model.CardRecord `json:"cards"`
	Confidence map[string]float64 `json:"confidence,omitempty"`
	Progress   model.Progress     `json:"progress"`
	Summary    string             `json:"summary,omitempty"`
	Flagged    string             `json:"flagged,omitempty"`
	CanUndo    bool               `json:"can_undo"`
	CanRedo    bool               `json:"can_redo"`
}

// reviewViewLocked must be called with h.mu held. Labels are localized for
// the request in ctx.
func (h *Handler) reviewViewLocked(ctx context.Context) reviewView {
	v := reviewView{
		Session:  h.session,
		Cards:    []model.CardRecord{},
		Progress: h.review.ReviewProgress(),
		CanUndo:  h.review.CanUndo(),
		CanRedo:  h.review.CanRedo(),
	}
	doc, ok := h.review.Document()
	if !ok {
		return v
	}
	v.Loaded = true
	v.Document = &doc
	v.Summary = h.catalog.Td(ctx, "ReviewProgress", map[string]any{
		"Done": v.Progress.Done, "Total": v.Progress.Total, "Percent": v.Progress.Percent,
	})
	flagged := 0
	for _, id := range h.review.CardIDs() {
		rec, ok := h.review.Card(id)
		if !ok {
			rec = model.CardRecord{ID: id}
		}
		if rec.Flagged {
			flagged++
		}
		v.Cards = append(v.Cards, rec)
		if c, ok := h.review.Confidence(id); ok {
			if v.Confidence == nil {
				v.Confidence = make(map[string]float64)
			}
			v.Confidence[id] = c
		}
	}
	if doc.Kind == model.UploadStudent {
		v.Flagged = h.catalog.Tp(ctx, "AnswersFlagged", flagged)
	}
	return v
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	v := h.reviewViewLocked(r.Context())
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleReviewEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mu.Lock()
	err := h.reviewIdle()
	if err == nil {
		err = applyReviewEdit(h.review, chi.URLParam(r, "op"), req)
	}
	v := h.reviewViewLocked(r.Context())
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// reviewIdle refuses review mutations while a scan is processing, since its
// result replaces the document and clears history.
func (h *Handler) reviewIdle() error {
	if h.scan.Busy() {
		return fmt.Errorf("review: %w", scan.ErrBusy)
	}
	return nil
}

func applyReviewEdit(m *review.Model, op string, req editRequest) error {
	switch op {
	case "student-name":
		return m.SetStudentName(req.Value)
	case "answer":
		return m.SetAnswer(req.ID, req.Value)
	case "remove-answer":
		return m.RemoveAnswer(req.ID)
	case "question-field":
		return m.UpdateField(req.ID, model.QuestionField(req.Field), req.Value)
	case "add-criterion":
		return m.AddCriterion(req.ID)
	case "remove-criterion":
		return m.RemoveCriterion(req.ID, req.Criterion)
	case "criterion-field":
		return m.SetCriterion(req.ID, req.Criterion, model.CriterionField(req.Field), req.Value)
	case "remove-question":
		return m.RemoveQuestion(req.Question)
	case "flag":
		_, err := m.ToggleFlag(req.ID)
		return err
	case "accept":
		_, err := m.ToggleAccept(req.ID)
		return err
	}
	return fmt.Errorf("review %w %q", ErrUnknownOp, op)
}

func (h *Handler) handleReviewUndo(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	err := h.reviewIdle()
	if err == nil {
		h.review.Undo()
	}
	v := h.reviewViewLocked(r.Context())
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleReviewRedo(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	err := h.reviewIdle()
	if err == nil {
		h.review.Redo()
	}
	v := h.reviewViewLocked(r.Context())
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// handleReviewAdopt moves the reviewed document into the next stage: a
// rubric goes to the rubric editor, a student sheet joins the wizard's
// answers.
func (h *Handler) handleReviewAdopt(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.review.Document()
	if !ok {
		h.respondError(w, r, model.Preconditionf("no document under review"))
		return
	}
	switch doc.Kind {
	case model.UploadRubric:
		h.editor.Load(doc.Rubric.Rubric)
		respondJSON(w, http.StatusOK, h.rubricViewLocked())
	default:
		sub := wizard.SubmissionFromExtraction(*doc.Student)
		if err := h.wizard.MergeSubmission(sub); err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, h.wizardViewLocked(r))
	}
}
