package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/gradewizard/internal/export"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/wizard"
)

type stepView struct {
	Step  wizard.Step `json:"step"`
	Index int         `json:"index"`
	Title string      `json:"title"`
}

type wizardView struct {
	wizard.State
	Index      int        `json:"step_index"`
	Title      string     `json:"title"`
	TotalSteps int        `json:"total_steps"`
	CanRun     bool       `json:"can_run"`
	Steps      []stepView `json:"steps"`
}

// wizardViewLocked must be called with h.mu held.
func (h *Handler) wizardViewLocked(r *http.Request) wizardView {
	st := h.wizard.State()
	v := wizardView{
		State:      st,
		Index:      int(st.Step),
		Title:      h.catalog.T(r.Context(), st.Step.MessageID()),
		TotalSteps: wizard.TotalSteps,
		CanRun:     h.wizard.CanRun(),
		Steps:      make([]stepView, 0, wizard.TotalSteps),
	}
	for i := 0; i < wizard.TotalSteps; i++ {
		s := wizard.Step(i)
		v.Steps = append(v.Steps, stepView{Step: s, Index: i, Title: h.catalog.T(r.Context(), s.MessageID())})
	}
	return v
}

func (h *Handler) handleWizard(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	v := h.wizardViewLocked(r)
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

// wizardUpdate applies fn to the flow and answers with the new state.
func (h *Handler) wizardUpdate(w http.ResponseWriter, r *http.Request, fn func(f *wizard.Flow) error) {
	h.mu.Lock()
	err := fn(h.wizard)
	v := h.wizardViewLocked(r)
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleWizardProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if (h.profiles != nil || h.profileWriter != nil) && strings.TrimSpace(req.ID) != "" {
		if _, err := h.lookupProfile(r.Context(), req.ID); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	h.wizardUpdate(w, r, func(f *wizard.Flow) error { return f.SetProfile(req.ID) })
}

func (h *Handler) handleWizardRubric(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.wizardUpdate(w, r, func(f *wizard.Flow) error { return f.SetRubricJSON(data) })
}

func (h *Handler) handleWizardAnswers(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.wizardUpdate(w, r, func(f *wizard.Flow) error { return f.SetAnswersJSON(data) })
}

func (h *Handler) handleWizardResults(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.wizardUpdate(w, r, func(f *wizard.Flow) error { return f.SetResultsJSON(data) })
}

// handleAdoptRubric hands the editor's rubric to the wizard.
func (h *Handler) handleAdoptRubric(w http.ResponseWriter, r *http.Request) {
	h.wizardUpdate(w, r, func(f *wizard.Flow) error {
		rb, ok := h.editor.Rubric()
		if !ok {
			return model.Preconditionf("no rubric loaded in the editor")
		}
		return f.AdoptRubric(rb)
	})
}

// handleEditWizardRubric loads the wizard's rubric into the editor.
func (h *Handler) handleEditWizardRubric(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	rb, ok := h.wizard.EditorRubric()
	if ok {
		h.editor.Load(rb)
	}
	v := h.rubricViewLocked()
	h.mu.Unlock()
	if !ok {
		h.respondError(w, r, model.Preconditionf("wizard has no rubric"))
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// handleWizardStep moves the wizard. The step is an alias, an index, or
// one of next and previous.
func (h *Handler) handleWizardStep(w http.ResponseWriter, r *http.Request) {
	step := chi.URLParam(r, "step")
	h.wizardUpdate(w, r, func(f *wizard.Flow) error {
		switch step {
		case "next":
			f.Next()
		case "previous":
			f.Previous()
		default:
			if s, ok := wizard.ParseStep(step); ok {
				f.GoTo(int(s))
				return nil
			}
			i, err := strconv.Atoi(step)
			if err != nil {
				return fmt.Errorf("%w: unknown step %q", ErrBadRequest, step)
			}
			f.GoTo(i)
		}
		return nil
	})
}

// handleRun grades on a snapshot of the wizard state so the lock is not
// held across the backend call.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.grader == nil {
		h.respondError(w, r, fmt.Errorf("grading: %w", ErrUnavailable))
		return
	}
	h.mu.Lock()
	req, err := h.wizard.Request()
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	body, err := h.grader.Grade(r.Context(), req)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("grade: %w", err))
		return
	}
	h.wizardUpdate(w, r, func(f *wizard.Flow) error {
		if err := f.SetResultsJSON(body); err != nil {
			return err
		}
		f.GoTo(int(wizard.StepResults))
		return nil
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := export.FormatJSON
	if s := r.URL.Query().Get("format"); s != "" {
		f, err := export.ParseFormat(s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		format = f
	}

	h.mu.Lock()
	st := h.wizard.State()
	h.mu.Unlock()
	if st.Results == nil {
		h.respondError(w, r, model.Preconditionf("no results to export"))
		return
	}
	title := h.catalog.T(r.Context(), "AppTitle")
	if st.Rubric != nil && st.Rubric.Title != "" {
		title = st.Rubric.Title
	}

	out, err := export.Render(format, *st.Results, st.Rubric, title)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	filename := fmt.Sprintf("results-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
