// Package wizard holds the six-step grading wizard: the step cursor, the
// schema-validated profile, rubric, answers and results, and the call that
// turns them into graded results.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/notify"
)

// Step is a wizard page index.
type Step int

const (
	StepProfile Step = iota
	StepRubricUpload
	StepRubricEdit
	StepAnswersUpload
	StepGrade
	StepResults
)

// TotalSteps is the number of wizard steps.
const TotalSteps = 6

var stepAliases = [TotalSteps]string{
	"profile", "rubric-upload", "rubric-edit", "answers-upload", "grade", "results",
}

var stepMessageIDs = [TotalSteps]string{
	"StepProfile", "StepRubricUpload", "StepRubricEdit", "StepAnswersUpload", "StepGrade", "StepResults",
}

// String returns the step's alias, e.g. "rubric-edit".
func (s Step) String() string {
	if s < 0 || s >= TotalSteps {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepAliases[s]
}

// MessageID returns the i18n message id of the step title.
func (s Step) MessageID() string {
	if s < 0 || s >= TotalSteps {
		return ""
	}
	return stepMessageIDs[s]
}

// MarshalText encodes the step as its alias.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStep resolves an alias to its step.
func ParseStep(alias string) (Step, bool) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	for i, a := range stepAliases {
		if a == alias {
			return Step(i), true
		}
	}
	return 0, false
}

// ChangeSource identifies wizard events on a shared change feed.
const ChangeSource = "wizard"

// ErrNotReady is returned by Run before a profile, rubric and answers are set.
var ErrNotReady = errors.New("wizard needs a profile, rubric and answers before grading")

// Grader submits a grading request and returns the raw results JSON.
type Grader interface {
	Grade(ctx context.Context, req model.GradeRequest) ([]byte, error)
}

// State is a view of the wizard. Its values share slices with the Flow and
// must be treated as read-only.
type State struct {
	Step      Step                `json:"step"`
	ProfileID *string             `json:"profileId"`
	Rubric    *model.WizardRubric `json:"rubric"`
	Answers   *model.Answers      `json:"answers"`
	Results   *model.Results      `json:"results"`
}

// Flow is the wizard state machine. Every assignment is validated before it
// is stored; a rejected assignment leaves the previous value in place.
//
// A Flow is not safe for concurrent use.
type Flow struct {
	logger   *slog.Logger
	validate *validator.Validate
	hub      notify.Hub[model.Change]

	step      Step
	profileID *string
	rubric    *model.WizardRubric
	answers   *model.Answers
	results   *model.Results
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// New returns a flow at the profile step with nothing set.
func New(opts ...Option) *Flow {
	f := &Flow{logger: slog.Default(), validate: newValidator()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "wizard")
	return f
}

// SetProfile selects the grading profile.
func (f *Flow) SetProfile(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: profile id is required", ErrValidation)
	}
	f.profileID = &id
	f.notify("profile")
	return nil
}

// SetRubric validates and stores r.
func (f *Flow) SetRubric(r model.WizardRubric) error {
	if err := f.validate.Struct(r); err != nil {
		return validationError("rubric", err)
	}
	f.rubric = &r
	f.notify("rubric")
	return nil
}

// SetRubricJSON decodes and stores a rubric.
func (f *Flow) SetRubricJSON(data []byte) error {
	var r model.WizardRubric
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("%w: rubric: %v", ErrValidation, err)
	}
	return f.SetRubric(r)
}

// SetAnswers validates and stores a.
func (f *Flow) SetAnswers(a model.Answers) error {
	if err := f.validate.Struct(a); err != nil {
		return validationError("answers", err)
	}
	f.answers = &a
	f.notify("answers")
	return nil
}

// SetAnswersJSON decodes and stores answers.
func (f *Flow) SetAnswersJSON(data []byte) error {
	var a model.Answers
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("%w: answers: %v", ErrValidation, err)
	}
	return f.SetAnswers(a)
}

// MergeSubmission adds sub to the held answers, replacing any submission of
// the same student. It starts a new answer set when none is held.
func (f *Flow) MergeSubmission(sub model.Submission) error {
	var a model.Answers
	if f.answers != nil {
		a.ProfileID = f.answers.ProfileID
		a.Submissions = slices.Clone(f.answers.Submissions)
	}
	i := slices.IndexFunc(a.Submissions, func(s model.Submission) bool { return s.StudentID == sub.StudentID })
	if i >= 0 {
		a.Submissions[i] = sub
	} else {
		a.Submissions = append(a.Submissions, sub)
	}
	return f.SetAnswers(a)
}

// SetResults validates and stores r.
func (f *Flow) SetResults(r model.Results) error {
	if err := f.validate.Struct(r); err != nil {
		return validationError("results", err)
	}
	f.results = &r
	f.notify("results")
	return nil
}

// SetResultsJSON decodes and stores results.
func (f *Flow) SetResultsJSON(data []byte) error {
	var r model.Results
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("%w: results: %v", ErrValidation, err)
	}
	return f.SetResults(r)
}

// AdoptRubric converts an editor rubric to the wizard schema and stores it.
func (f *Flow) AdoptRubric(r model.Rubric) error {
	return f.SetRubric(FromEditor(r))
}

// EditorRubric returns the held rubric in editor form.
func (f *Flow) EditorRubric() (model.Rubric, bool) {
	if f.rubric == nil {
		return model.Rubric{}, false
	}
	return ToEditor(*f.rubric), true
}

// Next advances one step. It reports whether the step changed.
func (f *Flow) Next() bool { return f.GoTo(int(f.step) + 1) }

// Previous goes back one step. It reports whether the step changed.
func (f *Flow) Previous() bool { return f.GoTo(int(f.step) - 1) }

// GoTo jumps to step i. Out-of-range indexes are ignored.
func (f *Flow) GoTo(i int) bool {
	if i < 0 || i >= TotalSteps {
		return false
	}
	if Step(i) == f.step {
		return false
	}
	from := f.step
	f.step = Step(i)
	f.logger.Debug("step changed", "from", from, "to", f.step)
	f.notify("step")
	return true
}

// Go jumps to the step with the given alias. Unknown aliases are ignored.
func (f *Flow) Go(alias string) bool {
	s, ok := ParseStep(alias)
	if !ok {
		return false
	}
	return f.GoTo(int(s))
}

// Step returns the current step.
func (f *Flow) Step() Step { return f.step }

// CanRun reports whether a profile, rubric and answers are all set.
func (f *Flow) CanRun() bool {
	return f.profileID != nil && f.rubric != nil && f.answers != nil
}

// State returns a view of the wizard.
func (f *Flow) State() State {
	s := State{Step: f.step}
	if f.profileID != nil {
		id := *f.profileID
		s.ProfileID = &id
	}
	if f.rubric != nil {
		r := *f.rubric
		s.Rubric = &r
	}
	if f.answers != nil {
		a := *f.answers
		s.Answers = &a
	}
	if f.results != nil {
		r := *f.results
		s.Results = &r
	}
	return s
}

// Request builds the grading request from the held state.
func (f *Flow) Request() (model.GradeRequest, error) {
	if !f.CanRun() {
		return model.GradeRequest{}, ErrNotReady
	}
	return model.GradeRequest{
		ExamRubric:     *f.rubric,
		Submissions:    f.answers.Submissions,
		GradingContext: model.GradingContext{ProfileID: *f.profileID},
	}, nil
}

// Run grades the held answers, stores the validated results and moves to
// the results step.
func (f *Flow) Run(ctx context.Context, g Grader) error {
	req, err := f.Request()
	if err != nil {
		return err
	}
	f.logger.Info("grading", "profile", req.GradingContext.ProfileID,
		"questions", len(req.ExamRubric.Questions), "submissions", len(req.Submissions))

	body, err := g.Grade(ctx, req)
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}
	if err := f.SetResultsJSON(body); err != nil {
		return err
	}
	f.GoTo(int(StepResults))
	return nil
}

// Subscribe registers fn for wizard changes and returns its cancel func.
func (f *Flow) Subscribe(fn func(model.Change)) (cancel func()) {
	return f.hub.Subscribe(fn)
}

func (f *Flow) notify(op string) {
	f.hub.Publish(model.Change{Source: ChangeSource, Op: op})
}
