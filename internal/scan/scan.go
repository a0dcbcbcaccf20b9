// Package scan drives a scanned document from upload through extraction to
// review: file and page checks, the extraction call with retry, response
// validation and error classification.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/notify"
	"github.com/pavelanni/gradewizard/internal/review"
)

// Stage is the orchestrator's position in the upload/process/review flow.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageUploading  Stage = "uploading"
	StageProcessing Stage = "processing"
	StageRetry      Stage = "retry"
	StageSuccess    Stage = "success"
	StageReview     Stage = "review"
	StageError      Stage = "error"
)

// ChangeSource identifies orchestrator events on a shared change feed.
const ChangeSource = "scan"

// Default processing parameters.
const DefaultTimeout = 120 * time.Second

// DefaultBackoff is the wait before each retry. Its length is the number of
// retries after the first attempt.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second}

// Extractor turns an uploaded document into extraction JSON.
type Extractor interface {
	Extract(ctx context.Context, req model.ExtractRequest) ([]byte, error)
}

// PageCounter reports the number of pages of a PDF.
type PageCounter interface {
	PageCount(ctx context.Context, filename string, data []byte) (int, error)
}

// Slicer cuts a PDF down to the selected pages.
type Slicer interface {
	Slice(ctx context.Context, filename string, data []byte, pages string) ([]byte, error)
}

// Loader receives a validated document. *review.Model implements it.
type Loader interface {
	Load(doc review.Document) error
}

// Translator localizes failure titles and messages.
type Translator interface {
	T(msgID string, data map[string]any) string
}

// Recorder observes processing attempts and outcomes.
type Recorder interface {
	ObserveAttempt(kind model.UploadType)
	ObserveOutcome(kind model.UploadType, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(model.UploadType)                        {}
func (nopRecorder) ObserveOutcome(model.UploadType, string, time.Duration) {}

type idTranslator struct{}

func (idTranslator) T(msgID string, _ map[string]any) string { return msgID }

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Stage        Stage            `json:"stage"`
	Filename     string           `json:"filename,omitempty"`
	Size         int              `json:"size,omitempty"`
	UploadType   model.UploadType `json:"upload_type,omitempty"`
	PageCount    int              `json:"page_count,omitempty"`
	Pages        string           `json:"pages,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Attempt      int              `json:"attempt,omitempty"`
	Error        *Failure         `json:"error,omitempty"`
}

// Orchestrator runs one document at a time. Its methods are safe for
// concurrent use; a second Process while one is running gets ErrBusy.
type Orchestrator struct {
	extractor Extractor
	loader    Loader
	counter   PageCounter
	slicer    Slicer
	presplit  bool
	tr        Translator
	rec       Recorder
	logger    *slog.Logger
	limits    Limits
	timeout   time.Duration
	backoff   []time.Duration
	sleep     func(context.Context, time.Duration) error
	validate  *validator.Validate
	hub       notify.Hub[model.Change]

	mu           sync.Mutex
	busy         bool
	stage        Stage
	file         *File
	uploadType   model.UploadType
	pageCount    int
	pages        string
	instructions string
	attempt      int
	failure      *Failure
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPageCounter enables FetchPageCount.
func WithPageCounter(c PageCounter) Option {
	return func(o *Orchestrator) { o.counter = c }
}

// WithSlicer cuts PDFs to the selected pages before upload instead of
// sending the selection along.
func WithSlicer(s Slicer) Option {
	return func(o *Orchestrator) {
		o.slicer = s
		o.presplit = s != nil
	}
}

// WithTranslator localizes failures.
func WithTranslator(t Translator) Option {
	return func(o *Orchestrator) { o.tr = t }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithLimits replaces the file limits.
func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

// WithTimeout bounds each extraction attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithBackoff sets the waits between attempts.
func WithBackoff(b ...time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = b }
}

// WithSleep replaces the wait used between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// New returns an idle orchestrator that hands successful results to loader.
func New(extractor Extractor, loader Loader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		loader:    loader,
		tr:        idTranslator{},
		rec:       nopRecorder{},
		logger:    slog.Default(),
		limits:    DefaultLimits(),
		timeout:   DefaultTimeout,
		backoff:   DefaultBackoff,
		sleep:     sleepCtx,
		validate:  newShapeValidator(),
		stage:     StageIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "scan")
	return o
}

// SubmitFile validates f and holds it for processing. Any previously held
// file is dropped. An invalid file moves the orchestrator to StageError and
// returns a validation *Failure.
func (o *Orchestrator) SubmitFile(f File, kind model.UploadType) error {
	if kind != model.UploadStudent && kind != model.UploadRubric {
		return model.Preconditionf("unknown upload type %q", kind)
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	o.clearLocked()
	o.uploadType = kind
	if p := o.limits.check(f); p != nil {
		o.failure = &Failure{
			Class:   ClassValidation,
			Title:   o.tr.T("ErrInvalidFileTitle", nil),
			Message: o.tr.T(p.msgID, p.data),
			Err:     fmt.Errorf("%w: %q: %s", ErrInvalidFile, f.Name, p.msgID),
		}
		o.stage = StageError
		failure := o.failure
		o.mu.Unlock()
		o.logger.Info("file rejected", "file", f.Name, "size", len(f.Data), "reason", p.msgID)
		o.notify(StageError)
		return failure
	}
	o.file = &File{Name: f.Name, Data: f.Data}
	o.stage = StageUploading
	o.mu.Unlock()

	o.logger.Info("file accepted", "file", f.Name, "size", len(f.Data), "upload_type", kind)
	o.notify(StageUploading)
	return nil
}

// FetchPageCount asks the page counter for the held PDF's page count.
func (o *Orchestrator) FetchPageCount(ctx context.Context) (int, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return 0, ErrBusy
	}
	if o.file == nil {
		o.mu.Unlock()
		return 0, ErrNoFile
	}
	if !o.file.IsPDF() {
		o.mu.Unlock()
		return 0, fmt.Errorf("page count: %q is not a PDF: %w", o.file.Name, model.ErrUnsupportedFile)
	}
	if o.counter == nil {
		o.mu.Unlock()
		return 0, errors.New("page count: no page counter configured")
	}
	f := *o.file
	o.busy = true
	o.mu.Unlock()

	n, err := o.counter.PageCount(ctx, f.Name, f.Data)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	if o.file != nil && o.file.Name == f.Name {
		o.pageCount = n
	}
	return n, nil
}

// SelectPages sets the PDF page selection. An empty selection means all
// pages. An invalid selection returns a validation *Failure and leaves the
// previous selection and the stage unchanged.
func (o *Orchestrator) SelectPages(sel string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	if o.file == nil {
		return ErrNoFile
	}
	if sel == "" {
		o.pages = ""
		return nil
	}
	if !o.file.IsPDF() {
		return o.pagesFailure(sel, fmt.Errorf("%w: %q is not a PDF", ErrInvalidPages, o.file.Name))
	}
	if o.pageCount < 1 {
		return &Failure{
			Class:   ClassValidation,
			Title:   o.tr.T("ErrInvalidPagesTitle", nil),
			Message: o.tr.T("ErrPageCountUnknown", nil),
			Err:     fmt.Errorf("%w: page count unknown", ErrInvalidPages),
		}
	}
	pages, err := ParsePageRange(sel, o.pageCount)
	if err != nil {
		return o.pagesFailure(sel, err)
	}
	o.pages = FormatPages(pages)
	return nil
}

func (o *Orchestrator) pagesFailure(sel string, err error) *Failure {
	return &Failure{
		Class:   ClassValidation,
		Title:   o.tr.T("ErrInvalidPagesTitle", nil),
		Message: o.tr.T("ErrPageRange", map[string]any{"Pages": sel, "Reason": reason(err)}),
		Err:     err,
	}
}

// SetInstructions sets custom extraction instructions for the next run.
func (o *Orchestrator) SetInstructions(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	o.instructions = text
	return nil
}

// Process sends the held file to the extractor, retrying retryable failures
// with backoff, and loads a valid result for review. A terminal failure is
// returned as *Failure and leaves the orchestrator in StageError.
func (o *Orchestrator) Process(ctx context.Context) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.file == nil {
		o.mu.Unlock()
		return fmt.Errorf("process: %w", ErrNoFile)
	}
	o.busy = true
	kind := o.uploadType
	f := *o.file
	req := model.ExtractRequest{
		UploadType:         kind,
		Filename:           f.Name,
		Data:               f.Data,
		CustomInstructions: o.instructions,
		Pages:              o.pages,
	}
	o.attempt = 0
	o.failure = nil
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	start := time.Now()
	logger := o.logger.With("file", f.Name, "upload_type", kind)

	if o.presplit && f.IsPDF() && req.Pages != "" {
		data, err := o.slicer.Slice(ctx, f.Name, f.Data, req.Pages)
		if err != nil {
			return o.fail(kind, start, o.failureFor(Classify(err), 0, err))
		}
		logger.Debug("sliced before upload", "pages", req.Pages, "size", len(data))
		req.Data = data
		req.Pages = ""
	}

	o.setStage(StageProcessing)
	maxAttempts := len(o.backoff) + 1
	for attempt := 1; ; attempt++ {
		o.mu.Lock()
		o.attempt = attempt
		o.mu.Unlock()
		o.rec.ObserveAttempt(kind)

		actx, cancel := context.WithTimeout(ctx, o.timeout)
		body, err := o.extractor.Extract(actx, req)
		cancel()

		if err == nil {
			doc, derr := decodeDocument(o.validate, kind, body)
			if derr != nil {
				logger.Warn("extraction response rejected", "error", derr)
				return o.fail(kind, start, o.failureFor(ClassShape, attempt, derr))
			}
			if lerr := o.loader.Load(doc); lerr != nil {
				return o.fail(kind, start, o.failureFor(ClassOther, attempt, lerr))
			}
			o.setStage(StageSuccess)
			o.setStage(StageReview)
			o.rec.ObserveOutcome(kind, "success", time.Since(start))
			logger.Info("document processed", "attempts", attempt, "elapsed", time.Since(start))
			return nil
		}

		class := Classify(err)
		if !class.Retryable() || attempt >= maxAttempts || ctx.Err() != nil {
			logger.Warn("extraction failed", "attempt", attempt, "class", class, "error", err)
			return o.fail(kind, start, o.failureFor(class, attempt, err))
		}

		wait := o.backoff[attempt-1]
		logger.Info("extraction failed, retrying", "attempt", attempt, "class", class, "wait", wait, "error", err)
		o.setStage(StageRetry)
		if serr := o.sleep(ctx, wait); serr != nil {
			return o.fail(kind, start, o.failureFor(Classify(serr), attempt, serr))
		}
		o.setStage(StageProcessing)
	}
}

// Reset drops the held file and returns to StageIdle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	o.clearLocked()
	o.stage = StageIdle
	o.mu.Unlock()
	o.notify(StageIdle)
	return nil
}

// Stage returns the current stage.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Err returns the last terminal failure, if any.
func (o *Orchestrator) Err() *Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failure
}

// Busy reports whether a processing run is in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Status returns a snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		Stage:        o.stage,
		UploadType:   o.uploadType,
		PageCount:    o.pageCount,
		Pages:        o.pages,
		Instructions: o.instructions,
		Attempt:      o.attempt,
		Error:        o.failure,
	}
	if o.file != nil {
		s.Filename = o.file.Name
		s.Size = len(o.file.Data)
	}
	return s
}

// Subscribe registers fn for stage changes and returns its cancel func.
func (o *Orchestrator) Subscribe(fn func(model.Change)) (cancel func()) {
	return o.hub.Subscribe(fn)
}

func (o *Orchestrator) clearLocked() {
	o.file = nil
	o.uploadType = ""
	o.pageCount = 0
	o.pages = ""
	o.attempt = 0
	o.failure = nil
}

func (o *Orchestrator) setStage(s Stage) {
	o.mu.Lock()
	o.stage = s
	o.mu.Unlock()
	o.notify(s)
}

func (o *Orchestrator) notify(s Stage) {
	o.hub.Publish(model.Change{Source: ChangeSource, Op: string(s)})
}

func (o *Orchestrator) fail(kind model.UploadType, start time.Time, f *Failure) error {
	o.mu.Lock()
	o.failure = f
	o.stage = StageError
	o.mu.Unlock()
	o.rec.ObserveOutcome(kind, string(f.Class), time.Since(start))
	o.notify(StageError)
	return f
}

func (o *Orchestrator) failureFor(class Class, attempts int, err error) *Failure {
	data := map[string]any{"Attempts": attempts, "Detail": reason(err)}
	f := &Failure{Class: class, Attempts: attempts, Err: err}
	switch class {
	case ClassTimeout:
		f.Title, f.Message = o.tr.T("ErrTimeoutTitle", nil), o.tr.T("ErrTimeout", data)
	case ClassNetwork:
		f.Title, f.Message = o.tr.T("ErrNetworkTitle", nil), o.tr.T("ErrNetwork", data)
	case ClassFileTooLarge:
		f.Title, f.Message = o.tr.T("ErrServerTooLargeTitle", nil), o.tr.T("ErrServerTooLarge", data)
	case ClassValidation:
		f.Title, f.Message = o.tr.T("ErrRejectedTitle", nil), o.tr.T("ErrRejected", data)
	case ClassShape:
		f.Title, f.Message = o.tr.T("ErrShapeTitle", nil), o.tr.T("ErrShape", data)
	default:
		f.Class = ClassOther
		f.Title, f.Message = o.tr.T("ErrOtherTitle", nil), o.tr.T("ErrOther", data)
	}
	return f
}

// reason strips wrapping sentinels so the detail shown to users is the
// specific cause.
func reason(err error) string {
	msg := err.Error()
	for _, s := range []error{ErrShape, ErrInvalidPages} {
		if rest, ok := strings.CutPrefix(msg, s.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
