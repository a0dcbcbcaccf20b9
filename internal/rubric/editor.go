package rubric

import (
	"fmt"
	"log/slog"

	"github.com/pavelanni/gradewizard/internal/history"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/notify"
)

// Status is the editor's lifecycle state.
type Status string

const (
	StatusEmpty  Status = "empty"
	StatusLoaded Status = "loaded"
	StatusEdited Status = "edited"
	StatusUndone Status = "undone"
	StatusRedone Status = "redone"
)

// ChangeSource identifies editor events on a shared change feed.
const ChangeSource = "rubric"

// Editor owns one rubric document. Every mutation snapshots the current
// document, applies the edit and then notifies subscribers. A failed edit
// leaves the document and history untouched.
//
// An Editor is not safe for concurrent use.
type Editor struct {
	logger *slog.Logger
	limit  int
	doc    *model.Rubric
	hist   *history.History[model.Rubric]
	status Status
	hub    notify.Hub[model.Change]
}

// Option configures an Editor.
type Option func(*Editor)

// WithHistoryLimit bounds the undo depth.
func WithHistoryLimit(n int) Option {
	return func(e *Editor) { e.limit = n }
}

// WithLogger sets the logger used for edit tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// NewEditor returns an empty editor.
func NewEditor(opts ...Option) *Editor {
	e := &Editor{
		logger: slog.Default(),
		limit:  history.DefaultLimit,
		status: StatusEmpty,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "rubric.editor")
	e.hist = history.New[model.Rubric](e.limit)
	return e
}

// Load replaces the document with a copy of r and resets history.
func (e *Editor) Load(r model.Rubric) {
	doc := history.Clone(r)
	e.doc = &doc
	e.hist.Clear()
	e.status = StatusLoaded
	e.logger.Debug("rubric loaded", "exam", r.ExamName, "questions", len(r.Questions))
	e.notify("load")
}

// SetExamName replaces the exam name.
func (e *Editor) SetExamName(name string) error {
	return e.commit("set_exam_name", func(r *model.Rubric) error {
		r.ExamName = name
		return nil
	})
}

// SetGeneralInstructions replaces the general instructions.
func (e *Editor) SetGeneralInstructions(text string) error {
	return e.commit("set_general_instructions", func(r *model.Rubric) error {
		r.GeneralInstructions = text
		return nil
	})
}

// SetTotalQuestionCount grows the rubric with placeholder questions or
// truncates it to n questions. Truncation is not confirmed; Undo recovers.
// Asking for the current count changes nothing and records no history.
func (e *Editor) SetTotalQuestionCount(n int) error {
	if n < 1 {
		return fmt.Errorf("set question count to %d: %w", n, model.ErrInvalidCount)
	}
	if e.doc == nil {
		return model.Preconditionf("no rubric loaded")
	}
	if n == len(e.doc.Questions) {
		return nil
	}
	return e.commit("set_question_count", func(r *model.Rubric) error {
		if n < len(r.Questions) {
			r.Questions = r.Questions[:n]
			return nil
		}
		for k := len(r.Questions) + 1; k <= n; k++ {
			r.Questions = append(r.Questions, NewQuestion(k))
		}
		return nil
	})
}

// SetQuestionField sets a scalar field of question i. max_points is coerced
// to a number and is not re-synced with the criteria.
func (e *Editor) SetQuestionField(i int, field model.QuestionField, value string) error {
	return e.commit("set_question_field", func(r *model.Rubric) error {
		if err := checkQuestion(r, i); err != nil {
			return err
		}
		return ApplyQuestionField(&r.Questions[i], field, value)
	})
}

// AddQuestion appends placeholder question Q{N+1}.
func (e *Editor) AddQuestion() error {
	return e.commit("add_question", func(r *model.Rubric) error {
		r.Questions = append(r.Questions, NewQuestion(len(r.Questions)+1))
		return nil
	})
}

// RemoveQuestion removes question i and renumbers the rest Q1..QN.
// The last remaining question cannot be removed.
func (e *Editor) RemoveQuestion(i int) error {
	return e.commit("remove_question", func(r *model.Rubric) error {
		if err := checkQuestion(r, i); err != nil {
			return err
		}
		if len(r.Questions) == 1 {
			return model.ErrLastQuestion
		}
		r.Questions = append(r.Questions[:i], r.Questions[i+1:]...)
		Renumber(r)
		return nil
	})
}

// AddCriterion appends an empty criterion to question i.
func (e *Editor) AddCriterion(i int) error {
	return e.commit("add_criterion", func(r *model.Rubric) error {
		if err := checkQuestion(r, i); err != nil {
			return err
		}
		AppendCriterion(&r.Questions[i])
		return nil
	})
}

// RemoveCriterion removes criterion c of question q.
func (e *Editor) RemoveCriterion(q, c int) error {
	return e.commit("remove_criterion", func(r *model.Rubric) error {
		if err := checkQuestion(r, q); err != nil {
			return err
		}
		return DeleteCriterion(&r.Questions[q], c)
	})
}

// SetCriterionField sets a field of criterion c of question q.
func (e *Editor) SetCriterionField(q, c int, field model.CriterionField, value string) error {
	return e.commit("set_criterion_field", func(r *model.Rubric) error {
		if err := checkQuestion(r, q); err != nil {
			return err
		}
		return ApplyCriterionField(&r.Questions[q], c, field, value)
	})
}

// Undo restores the previous document. It reports false when there is
// nothing to undo.
func (e *Editor) Undo() bool {
	if e.doc == nil {
		return false
	}
	prev, ok := e.hist.Undo(*e.doc)
	if !ok {
		return false
	}
	e.doc = &prev
	e.status = StatusUndone
	e.notify("undo")
	return true
}

// Redo re-applies the most recently undone edit.
func (e *Editor) Redo() bool {
	if e.doc == nil {
		return false
	}
	next, ok := e.hist.Redo(*e.doc)
	if !ok {
		return false
	}
	e.doc = &next
	e.status = StatusRedone
	e.notify("redo")
	return true
}

func (e *Editor) CanUndo() bool { return e.hist.CanUndo() }
func (e *Editor) CanRedo() bool { return e.hist.CanRedo() }

// Status returns the lifecycle state.
func (e *Editor) Status() Status { return e.status }

// Rubric returns a copy of the document. ok is false when nothing is loaded.
func (e *Editor) Rubric() (r model.Rubric, ok bool) {
	if e.doc == nil {
		return model.Rubric{}, false
	}
	return history.Clone(*e.doc), true
}

// Validate runs the advisory checks on the current document.
func (e *Editor) Validate() []model.Issue {
	if e.doc == nil {
		return nil
	}
	return Validate(*e.doc)
}

// Subscribe registers fn for change events and returns its cancel func.
func (e *Editor) Subscribe(fn func(model.Change)) (cancel func()) {
	return e.hub.Subscribe(fn)
}

func (e *Editor) commit(op string, apply func(*model.Rubric) error) error {
	if e.doc == nil {
		return model.Preconditionf("%s: no rubric loaded", op)
	}
	work := history.Clone(*e.doc)
	if err := apply(&work); err != nil {
		e.logger.Debug("edit rejected", "op", op, "error", err)
		return err
	}
	e.hist.Push(*e.doc)
	e.doc = &work
	e.status = StatusEdited
	e.logger.Debug("edit committed", "op", op)
	e.notify(op)
	return nil
}

func (e *Editor) notify(op string) {
	e.hub.Publish(model.Change{Source: ChangeSource, Op: op})
}
