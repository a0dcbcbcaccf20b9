package review

import (
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"

	"github.com/pavelanni/gradewizard/internal/model"
)

func studentDoc() model.StudentExtraction {
	return model.StudentExtraction{
		StudentName: "Ann",
		Answers: map[string]string{
			"Q1":  "Photosynthesis converts light into chemical energy",
			"Q2":  "",
			"Q10": "42",
		},
		Confidence:         0.9,
		QuestionConfidence: map[string]float64{"Q1": 0.92},
	}
}

func rubricDoc() model.RubricExtraction {
	return model.RubricExtraction{
		Rubric: model.Rubric{
			ExamName: "Biology",
			Questions: []model.Question{
				{QuestionID: "Q1", QuestionText: "Define osmosis", MaxPoints: 3, Criteria: []model.Criterion{{Criterion: "definition", MaxPoints: 3}}},
				{QuestionID: "Q2", QuestionText: "Name two organelles", MaxPoints: 4, Criteria: []model.Criterion{{Criterion: "first", MaxPoints: 2}, {Criterion: "second", MaxPoints: 2}}},
			},
		},
		Confidence: 0.8,
	}
}

func loadStudent(t *testing.T, s model.StudentExtraction, opts ...Option) *Model {
	t.Helper()
	m := New(opts...)
	if err := m.LoadStudent(s); err != nil {
		t.Fatalf("LoadStudent: %v", err)
	}
	return m
}

func loadRubric(t *testing.T) *Model {
	t.Helper()
	m := New()
	if err := m.LoadRubric(rubricDoc()); err != nil {
		t.Fatalf("LoadRubric: %v", err)
	}
	return m
}

func TestAutoFlagThreshold(t *testing.T) {
	tests := []struct {
		confidence float64
		flagged    bool
	}{
		{0.65, true},
		{0.75, false},
	}
	for _, tt := range tests {
		m := loadStudent(t, model.StudentExtraction{
			StudentName:        "Ann",
			Answers:            map[string]string{"Q1": "x"},
			QuestionConfidence: map[string]float64{"Q1": tt.confidence},
		})
		rec, _ := m.Card("Q1")
		if rec.Flagged != tt.flagged {
			t.Errorf("confidence %v: expected flagged=%v, got %+v", tt.confidence, tt.flagged, rec)
		}
		if m.CanUndo() {
			t.Error("auto-flagging must not record history")
		}
	}
}

func TestAutoFlagFallback(t *testing.T) {
	m := loadStudent(t, studentDoc())
	for id, want := range map[string]bool{"Q1": false, "Q2": true, "Q10": true} {
		rec, _ := m.Card(id)
		if rec.Flagged != want {
			t.Errorf("%s: expected flagged=%v, got %+v", id, want, rec)
		}
	}
	if c, _ := m.Confidence("Q2"); c != 0.45 {
		t.Errorf("expected empty answer confidence 0.45, got %v", c)
	}

	lenient := loadStudent(t, studentDoc(), WithFlagThreshold(0.5))
	if rec, _ := lenient.Card("Q10"); rec.Flagged {
		t.Errorf("expected Q10 unflagged at threshold 0.5, got %+v", rec)
	}

	custom := loadStudent(t, studentDoc(), WithConfidenceFunc(func(string) float64 { return 1 }))
	if rec, _ := custom.Card("Q2"); rec.Flagged {
		t.Errorf("expected custom confidence to suppress flag, got %+v", rec)
	}
}

func TestLengthConfidence(t *testing.T) {
	tests := []struct {
		answer string
		want   float64
	}{
		{"", 0.45},
		{"   ", 0.55 + math.Log10(4)/10},
		{"123456789", 0.65},
		{"клетка", 0.55 + math.Log10(13)/10},
	}
	for _, tt := range tests {
		if got := LengthConfidence(tt.answer); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("LengthConfidence(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
	long := make([]byte, 100000)
	for i := range long {
		long[i] = 'a'
	}
	if got := LengthConfidence(string(long)); got != 0.95 {
		t.Errorf("expected clamp at 0.95, got %v", got)
	}
}

func TestStudentUndoRedoInverse(t *testing.T) {
	m := loadStudent(t, studentDoc())
	before, _ := m.Document()
	beforeQ2, _ := m.Card("Q2")

	ops := []func() error{
		func() error { return m.SetStudentName("Ann Lee") },
		func() error { return m.SetAnswer("Q2", "mitochondria") },
		func() error { _, err := m.ToggleAccept("Q2"); return err },
		func() error { return m.RemoveAnswer("Q10") },
		func() error { _, err := m.ToggleFlag("Q1"); return err },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
	after, _ := m.Document()
	afterQ2, _ := m.Card("Q2")

	for range ops {
		m.Undo()
	}
	got, _ := m.Document()
	if !reflect.DeepEqual(got, before) {
		t.Errorf("expected original document, got %+v", got.Student)
	}
	if rec, _ := m.Card("Q2"); rec != beforeQ2 {
		t.Errorf("expected card %+v, got %+v", beforeQ2, rec)
	}

	for range ops {
		m.Redo()
	}
	got, _ = m.Document()
	if !reflect.DeepEqual(got, after) {
		t.Errorf("expected final document, got %+v", got.Student)
	}
	if rec, _ := m.Card("Q2"); rec != afterQ2 {
		t.Errorf("expected card %+v, got %+v", afterQ2, rec)
	}
}

func TestToggleUndoMovesCardsWithDocument(t *testing.T) {
	m := loadStudent(t, studentDoc())
	if _, err := m.ToggleAccept("Q1"); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveAnswer("Q1"); err != nil {
		t.Fatal(err)
	}
	m.Undo()
	d, _ := m.Document()
	if _, ok := d.Student.Answers["Q1"]; !ok {
		t.Fatal("expected Q1 answer back")
	}
	if rec, _ := m.Card("Q1"); !rec.Accepted {
		t.Errorf("expected Q1 accepted, got %+v", rec)
	}
	m.Undo()
	if rec, _ := m.Card("Q1"); rec.Accepted {
		t.Errorf("expected Q1 not accepted after second undo, got %+v", rec)
	}
}

func TestStudentProgress(t *testing.T) {
	m := loadStudent(t, studentDoc())
	p := m.ReviewProgress()
	if p.Done != 2 || p.Total != 3 || p.Percent != 67 {
		t.Fatalf("expected 2/3 after auto-flag, got %+v", p)
	}
	if err := m.RemoveAnswer("Q2"); err != nil {
		t.Fatal(err)
	}
	p = m.ReviewProgress()
	if p.Done != 1 || p.Total != 2 || p.Percent != 50 {
		t.Errorf("expected removed answer to leave progress, got %+v", p)
	}
	if ids := m.CardIDs(); !slices.Equal(ids, []string{"Q1", "Q10"}) {
		t.Errorf("expected natural order, got %v", ids)
	}
}

func TestRubricCriterionSync(t *testing.T) {
	m := loadRubric(t)
	question := func(id string) model.Question {
		d, _ := m.Document()
		for _, q := range d.Rubric.Questions {
			if q.QuestionID == id {
				return q
			}
		}
		t.Fatalf("question %s missing", id)
		return model.Question{}
	}

	if err := m.AddCriterion("Q1"); err != nil {
		t.Fatal(err)
	}
	if q := question("Q1"); q.MaxPoints != 4 {
		t.Errorf("expected 4 after add, got %v", q.MaxPoints)
	}
	if err := m.SetCriterion("Q2", 0, model.FieldCriterionPoints, "5"); err != nil {
		t.Fatal(err)
	}
	if q := question("Q2"); q.MaxPoints != 7 {
		t.Errorf("expected 7 after set, got %v", q.MaxPoints)
	}
	if err := m.RemoveCriterion("Q2", 1); err != nil {
		t.Fatal(err)
	}
	if q := question("Q2"); q.MaxPoints != 5 {
		t.Errorf("expected 5 after remove, got %v", q.MaxPoints)
	}
	if err := m.RemoveCriterion("Q2", 0); !errors.Is(err, model.ErrLastCriterion) {
		t.Errorf("expected ErrLastCriterion, got %v", err)
	}

	if err := m.UpdateField("Q1", model.FieldMaxPoints, "9"); err != nil {
		t.Fatal(err)
	}
	if q := question("Q1"); q.MaxPoints != 9 {
		t.Errorf("expected explicit max_points 9, got %v", q.MaxPoints)
	}
	if err := m.UpdateField("Q1", model.FieldQuestionText, "Define diffusion"); err != nil {
		t.Fatal(err)
	}
	if q := question("Q1"); q.MaxPoints != 4 {
		t.Errorf("expected text edit to re-sync to 4, got %v", q.MaxPoints)
	}
}

func TestRubricRemoveQuestionKeepsIDs(t *testing.T) {
	m := loadRubric(t)
	if _, err := m.ToggleAccept("Q2"); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveQuestion(0); err != nil {
		t.Fatal(err)
	}
	d, _ := m.Document()
	if len(d.Rubric.Questions) != 1 || d.Rubric.Questions[0].QuestionID != "Q2" {
		t.Fatalf("expected only Q2 left, got %+v", d.Rubric.Questions)
	}
	if p := m.ReviewProgress(); p.Done != 1 || p.Total != 1 || p.Percent != 100 {
		t.Errorf("expected 1/1, got %+v", p)
	}
	if err := m.RemoveQuestion(0); !errors.Is(err, model.ErrLastQuestion) {
		t.Errorf("expected ErrLastQuestion, got %v", err)
	}
}

func TestRenameCarriesCard(t *testing.T) {
	m := loadRubric(t)
	if _, err := m.ToggleFlag("Q1"); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateField("Q1", model.FieldQuestionID, "1a"); err != nil {
		t.Fatal(err)
	}
	if rec, ok := m.Card("1a"); !ok || !rec.Flagged || rec.ID != "1a" {
		t.Errorf("expected flagged card under new id, got %+v", rec)
	}
	if _, ok := m.Card("Q1"); ok {
		t.Error("expected old card id to be gone")
	}
	m.Undo()
	if rec, _ := m.Card("Q1"); !rec.Flagged {
		t.Errorf("expected card restored under Q1, got %+v", rec)
	}
}

func TestRenameRejectsTakenID(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"existing id", "Q2"},
		{"empty id", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadRubric(t)
			if _, err := m.ToggleAccept("Q2"); err != nil {
				t.Fatal(err)
			}
			if _, err := m.ToggleFlag("Q1"); err != nil {
				t.Fatal(err)
			}
			err := m.UpdateField("Q1", model.FieldQuestionID, tt.value)
			if !errors.Is(err, model.ErrPrecondition) {
				t.Fatalf("expected ErrPrecondition, got %v", err)
			}
			if rec, _ := m.Card("Q2"); !rec.Accepted || rec.Flagged {
				t.Errorf("expected Q2 card untouched, got %+v", rec)
			}
			if rec, _ := m.Card("Q1"); !rec.Flagged {
				t.Errorf("expected Q1 card untouched, got %+v", rec)
			}
			want := model.Progress{Done: 2, Total: 2, Percent: 100}
			if got := m.ReviewProgress(); got != want {
				t.Errorf("expected progress %+v, got %+v", want, got)
			}
			doc, _ := m.Document()
			if doc.Rubric.Questions[0].QuestionID != "Q1" || doc.Rubric.Questions[1].QuestionID != "Q2" {
				t.Errorf("expected ids unchanged, got %q, %q", doc.Rubric.Questions[0].QuestionID, doc.Rubric.Questions[1].QuestionID)
			}
		})
	}
}

func TestProgressTotalCountsQuestions(t *testing.T) {
	doc := rubricDoc()
	doc.Questions[1].QuestionID = "Q1"
	m := New()
	if err := m.LoadRubric(doc); err != nil {
		t.Fatal(err)
	}
	if got := m.ReviewProgress().Total; got != 2 {
		t.Errorf("expected total 2 for 2 questions, got %d", got)
	}
}

func TestPreconditions(t *testing.T) {
	empty := New()
	if err := empty.SetStudentName("x"); !errors.Is(err, model.ErrPrecondition) {
		t.Errorf("expected precondition on empty model, got %v", err)
	}
	if err := empty.Load(Document{Kind: model.UploadStudent}); !errors.Is(err, model.ErrPrecondition) {
		t.Errorf("expected precondition for missing student data, got %v", err)
	}

	s := loadStudent(t, studentDoc())
	r := loadRubric(t)
	tests := []struct {
		name string
		op   func() error
	}{
		{"rubric op on student", func() error { return s.AddCriterion("Q1") }},
		{"student op on rubric", func() error { return r.SetAnswer("Q1", "x") }},
		{"unknown card", func() error { _, err := s.ToggleFlag("Q99"); return err }},
		{"unknown question", func() error { return r.AddCriterion("Q99") }},
		{"missing answer", func() error { return s.RemoveAnswer("Q99") }},
		{"criterion index", func() error { return r.SetCriterion("Q1", 4, model.FieldCriterionText, "x") }},
		{"question index", func() error { return r.RemoveQuestion(9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, model.ErrPrecondition) {
				t.Errorf("expected ErrPrecondition, got %v", err)
			}
		})
	}
	if s.CanUndo() || r.CanUndo() {
		t.Error("failed edits must not record history")
	}
}

func TestNewEditClearsRedo(t *testing.T) {
	m := loadRubric(t)
	_ = m.AddCriterion("Q1")
	m.Undo()
	if !m.CanRedo() {
		t.Fatal("expected redo available")
	}
	_, _ = m.ToggleFlag("Q2")
	if m.CanRedo() {
		t.Error("expected toggle to clear redo")
	}
}

func TestSubscribe(t *testing.T) {
	m := New()
	var ops []string
	m.Subscribe(func(c model.Change) {
		if c.Source != ChangeSource {
			t.Errorf("unexpected source %q", c.Source)
		}
		ops = append(ops, c.Op)
	})
	_ = m.LoadRubric(rubricDoc())
	_, _ = m.ToggleAccept("Q1")
	m.Undo()
	m.Redo()
	if want := []string{"load", "toggle_accept", "undo", "redo"}; !slices.Equal(ops, want) {
		t.Errorf("expected %v, got %v", want, ops)
	}
}
