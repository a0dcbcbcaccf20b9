// Package review holds an extraction document under human review: edits,
// per-card flagged/accepted state, confidence auto-flagging and undo/redo.
package review

import (
	"fmt"
	"log/slog"

	"github.com/pavelanni/gradewizard/internal/cards"
	"github.com/pavelanni/gradewizard/internal/history"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/notify"
	"github.com/pavelanni/gradewizard/internal/rubric"
)

// ChangeSource identifies review events on a shared change feed.
const ChangeSource = "review"

// Document is either a student extraction or a rubric extraction.
type Document struct {
	Kind    model.UploadType         `json:"kind"`
	Student *model.StudentExtraction `json:"student,omitempty"`
	Rubric  *model.RubricExtraction  `json:"rubric,omitempty"`
}

// Snapshot is one undo checkpoint. Document and cards always move together.
type Snapshot struct {
	Document Document
	Cards    map[string]model.CardRecord
}

// Model owns one extraction document and its card state.
// A Model is not safe for concurrent use.
type Model struct {
	logger     *slog.Logger
	limit      int
	threshold  float64
	confidence ConfidenceFunc

	doc   *Document
	cards *cards.State
	hist  *history.History[Snapshot]
	hub   notify.Hub[model.Change]
}

// Option configures a Model.
type Option func(*Model)

// WithHistoryLimit bounds the undo depth.
func WithHistoryLimit(n int) Option {
	return func(m *Model) { m.limit = n }
}

// WithFlagThreshold sets the auto-flag confidence threshold.
func WithFlagThreshold(t float64) Option {
	return func(m *Model) { m.threshold = t }
}

// WithConfidenceFunc replaces the fallback confidence estimate.
func WithConfidenceFunc(fn ConfidenceFunc) Option {
	return func(m *Model) { m.confidence = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// New returns an empty review model.
func New(opts ...Option) *Model {
	m := &Model{
		logger:     slog.Default(),
		limit:      history.DefaultLimit,
		threshold:  DefaultFlagThreshold,
		confidence: LengthConfidence,
		cards:      cards.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "review.model")
	m.hist = history.New[Snapshot](m.limit)
	return m
}

// Load replaces the document, clears cards and history, and auto-flags
// low-confidence student answers. Auto-flagging is not an undoable edit.
func (m *Model) Load(doc Document) error {
	switch doc.Kind {
	case model.UploadStudent:
		if doc.Student == nil {
			return model.Preconditionf("student document without student data")
		}
	case model.UploadRubric:
		if doc.Rubric == nil {
			return model.Preconditionf("rubric document without rubric data")
		}
	default:
		return model.Preconditionf("unknown document kind %q", doc.Kind)
	}

	d := history.Clone(doc)
	m.doc = &d
	m.cards.Reset()
	m.hist.Clear()

	flagged := 0
	if d.Kind == model.UploadStudent {
		for qid := range d.Student.Answers {
			if c, _ := m.Confidence(qid); c < m.threshold {
				m.cards.Flag(qid)
				flagged++
			}
		}
	}
	m.logger.Debug("document loaded", "kind", d.Kind, "auto_flagged", flagged)
	m.notify("load")
	return nil
}

// LoadStudent loads a student extraction.
func (m *Model) LoadStudent(s model.StudentExtraction) error {
	return m.Load(Document{Kind: model.UploadStudent, Student: &s})
}

// LoadRubric loads a rubric extraction.
func (m *Model) LoadRubric(r model.RubricExtraction) error {
	return m.Load(Document{Kind: model.UploadRubric, Rubric: &r})
}

// Loaded reports whether a document is present.
func (m *Model) Loaded() bool { return m.doc != nil }

// Kind returns the loaded document kind, or "" when empty.
func (m *Model) Kind() model.UploadType {
	if m.doc == nil {
		return ""
	}
	return m.doc.Kind
}

// Document returns a copy of the loaded document.
func (m *Model) Document() (Document, bool) {
	if m.doc == nil {
		return Document{}, false
	}
	return history.Clone(*m.doc), true
}

// Confidence returns the extraction confidence of a student answer: the
// backend's per-question score when present, else the fallback estimate.
func (m *Model) Confidence(qid string) (float64, bool) {
	if m.doc == nil || m.doc.Kind != model.UploadStudent {
		return 0, false
	}
	s := m.doc.Student
	if c, ok := s.QuestionConfidence[qid]; ok {
		return c, true
	}
	answer, ok := s.Answers[qid]
	if !ok {
		return 0, false
	}
	return m.confidence(answer), true
}

// Card returns the review record of id, if one exists.
func (m *Model) Card(id string) (model.CardRecord, bool) {
	return m.cards.Get(id)
}

// CardIDs lists the ids that make up review progress: answer ids in natural
// order for students, question ids in document order for rubrics.
func (m *Model) CardIDs() []string {
	if m.doc == nil {
		return nil
	}
	switch m.doc.Kind {
	case model.UploadStudent:
		ids := make([]string, 0, len(m.doc.Student.Answers))
		for id := range m.doc.Student.Answers {
			ids = append(ids, id)
		}
		model.SortQuestionIDs(ids)
		return ids
	default:
		ids := make([]string, 0, len(m.doc.Rubric.Questions))
		for _, q := range m.doc.Rubric.Questions {
			ids = append(ids, q.QuestionID)
		}
		return ids
	}
}

// ReviewProgress counts reviewed cards among the ids still in the document.
func (m *Model) ReviewProgress() model.Progress {
	return m.cards.Progress(m.CardIDs())
}

// SetStudentName replaces the student name.
func (m *Model) SetStudentName(name string) error {
	return m.commitStudent("set_student_name", func(s *model.StudentExtraction, _ *cards.State) error {
		s.StudentName = name
		return nil
	})
}

// SetAnswer sets the answer text of qid, adding the answer if missing.
func (m *Model) SetAnswer(qid, text string) error {
	if qid == "" {
		return model.Preconditionf("empty question id")
	}
	return m.commitStudent("set_answer", func(s *model.StudentExtraction, _ *cards.State) error {
		if s.Answers == nil {
			s.Answers = make(map[string]string)
		}
		s.Answers[qid] = text
		return nil
	})
}

// RemoveAnswer deletes the answer of qid. Its card no longer counts
// toward progress.
func (m *Model) RemoveAnswer(qid string) error {
	return m.commitStudent("remove_answer", func(s *model.StudentExtraction, _ *cards.State) error {
		if _, ok := s.Answers[qid]; !ok {
			return model.Preconditionf("no answer for question %q", qid)
		}
		delete(s.Answers, qid)
		return nil
	})
}

// UpdateField sets a scalar field of question qid. Unless the field is
// max_points itself, a question with a positive criteria total is re-synced.
// Renaming a question carries its card along; the new id must be non-empty
// and unused.
func (m *Model) UpdateField(qid string, field model.QuestionField, value string) error {
	return m.commitRubric("update_field", func(r *model.RubricExtraction, c *cards.State) error {
		q, err := findQuestion(r, qid)
		if err != nil {
			return err
		}
		if field == model.FieldQuestionID && value != qid {
			if value == "" {
				return model.Preconditionf("question %q: empty id", qid)
			}
			if _, err := findQuestion(r, value); err == nil {
				return model.Preconditionf("question %q: id %q is already used", qid, value)
			}
		}
		if err := rubric.ApplyQuestionField(q, field, value); err != nil {
			return err
		}
		if field != model.FieldMaxPoints && q.CriteriaSum() > 0 {
			rubric.SyncPoints(q)
		}
		if field == model.FieldQuestionID && value != qid {
			if rec, ok := c.Get(qid); ok {
				c.Delete(qid)
				rec.ID = value
				c.Put(rec)
			}
		}
		return nil
	})
}

// AddCriterion appends an empty criterion to question qid.
func (m *Model) AddCriterion(qid string) error {
	return m.commitRubric("add_criterion", func(r *model.RubricExtraction, _ *cards.State) error {
		q, err := findQuestion(r, qid)
		if err != nil {
			return err
		}
		rubric.AppendCriterion(q)
		return nil
	})
}

// RemoveCriterion removes criterion ci of question qid.
func (m *Model) RemoveCriterion(qid string, ci int) error {
	return m.commitRubric("remove_criterion", func(r *model.RubricExtraction, _ *cards.State) error {
		q, err := findQuestion(r, qid)
		if err != nil {
			return err
		}
		return rubric.DeleteCriterion(q, ci)
	})
}

// SetCriterion sets a field of criterion ci of question qid.
func (m *Model) SetCriterion(qid string, ci int, field model.CriterionField, value string) error {
	return m.commitRubric("set_criterion", func(r *model.RubricExtraction, _ *cards.State) error {
		q, err := findQuestion(r, qid)
		if err != nil {
			return err
		}
		return rubric.ApplyCriterionField(q, ci, field, value)
	})
}

// RemoveQuestion removes the question at index. Remaining ids are kept
// because cards are addressed by them.
func (m *Model) RemoveQuestion(index int) error {
	return m.commitRubric("remove_question", func(r *model.RubricExtraction, _ *cards.State) error {
		if index < 0 || index >= len(r.Questions) {
			return model.Preconditionf("question index %d out of range [0,%d)", index, len(r.Questions))
		}
		if len(r.Questions) == 1 {
			return model.ErrLastQuestion
		}
		r.Questions = append(r.Questions[:index], r.Questions[index+1:]...)
		return nil
	})
}

// ToggleFlag flips the flagged state of card id.
func (m *Model) ToggleFlag(id string) (model.CardRecord, error) {
	var rec model.CardRecord
	err := m.commit("toggle_flag", func(d *Document, c *cards.State) error {
		if err := checkCard(d, id); err != nil {
			return err
		}
		rec = c.ToggleFlag(id)
		return nil
	})
	return rec, err
}

// ToggleAccept flips the accepted state of card id.
func (m *Model) ToggleAccept(id string) (model.CardRecord, error) {
	var rec model.CardRecord
	err := m.commit("toggle_accept", func(d *Document, c *cards.State) error {
		if err := checkCard(d, id); err != nil {
			return err
		}
		rec = c.ToggleAccept(id)
		return nil
	})
	return rec, err
}

// Undo restores the previous document and card state together.
func (m *Model) Undo() bool {
	if m.doc == nil {
		return false
	}
	prev, ok := m.hist.Undo(m.snapshot())
	if !ok {
		return false
	}
	m.restore(prev)
	m.notify("undo")
	return true
}

// Redo re-applies the most recently undone edit.
func (m *Model) Redo() bool {
	if m.doc == nil {
		return false
	}
	next, ok := m.hist.Redo(m.snapshot())
	if !ok {
		return false
	}
	m.restore(next)
	m.notify("redo")
	return true
}

func (m *Model) CanUndo() bool { return m.hist.CanUndo() }
func (m *Model) CanRedo() bool { return m.hist.CanRedo() }

// Subscribe registers fn for change events and returns its cancel func.
func (m *Model) Subscribe(fn func(model.Change)) (cancel func()) {
	return m.hub.Subscribe(fn)
}

func (m *Model) snapshot() Snapshot {
	return Snapshot{Document: *m.doc, Cards: m.cards.Snapshot()}
}

func (m *Model) restore(s Snapshot) {
	d := s.Document
	m.doc = &d
	m.cards.Restore(s.Cards)
}

func (m *Model) commit(op string, apply func(*Document, *cards.State) error) error {
	if m.doc == nil {
		return model.Preconditionf("%s: no document loaded", op)
	}
	work := history.Clone(*m.doc)
	workCards := cards.New()
	workCards.Restore(m.cards.Snapshot())
	if err := apply(&work, workCards); err != nil {
		m.logger.Debug("edit rejected", "op", op, "error", err)
		return err
	}
	m.hist.Push(m.snapshot())
	m.doc = &work
	m.cards = workCards
	m.logger.Debug("edit committed", "op", op)
	m.notify(op)
	return nil
}

func (m *Model) commitStudent(op string, apply func(*model.StudentExtraction, *cards.State) error) error {
	return m.commit(op, func(d *Document, c *cards.State) error {
		if d.Kind != model.UploadStudent {
			return model.Preconditionf("%s: loaded document is a %s document", op, d.Kind)
		}
		return apply(d.Student, c)
	})
}

func (m *Model) commitRubric(op string, apply func(*model.RubricExtraction, *cards.State) error) error {
	return m.commit(op, func(d *Document, c *cards.State) error {
		if d.Kind != model.UploadRubric {
			return model.Preconditionf("%s: loaded document is a %s document", op, d.Kind)
		}
		return apply(d.Rubric, c)
	})
}

func (m *Model) notify(op string) {
	m.hub.Publish(model.Change{Source: ChangeSource, Op: op})
}

func findQuestion(r *model.RubricExtraction, qid string) (*model.Question, error) {
	for i := range r.Questions {
		if r.Questions[i].QuestionID == qid {
			return &r.Questions[i], nil
		}
	}
	return nil, model.Preconditionf("no question %q", qid)
}

func checkCard(d *Document, id string) error {
	switch d.Kind {
	case model.UploadStudent:
		if _, ok := d.Student.Answers[id]; ok {
			return nil
		}
	case model.UploadRubric:
		for _, q := range d.Rubric.Questions {
			if q.QuestionID == id {
				return nil
			}
		}
	}
	return fmt.Errorf("card %q: %w", id, model.ErrPrecondition)
}
