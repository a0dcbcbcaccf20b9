// Package handler exposes one grading workspace over a JSON API: the rubric
// editor, the extraction review, the scan pipeline, the wizard, saved
// sessions and a websocket change feed.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/gradewizard/internal/backend"
	"github.com/pavelanni/gradewizard/internal/i18n"
	"github.com/pavelanni/gradewizard/internal/metrics"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/notify"
	"github.com/pavelanni/gradewizard/internal/review"
	"github.com/pavelanni/gradewizard/internal/rubric"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/store"
	"github.com/pavelanni/gradewizard/internal/wizard"
)

// DefaultAutosaveDelay is how long review edits settle before the open
// session is saved.
const DefaultAutosaveDelay = 2 * time.Second

// Advisor returns backend feedback on a rubric.
type Advisor interface {
	RubricFeedback(ctx context.Context, r model.Rubric) (backend.Feedback, error)
}

// ProfileSource lists the backend's grading profiles.
type ProfileSource interface {
	Profiles(ctx context.Context) ([]model.Profile, error)
}

// ProfileService manages grading profiles on the backend. When configured,
// profile writes go to it first and the local store acts as a cache.
type ProfileService interface {
	Profile(ctx context.Context, id string) (model.Profile, error)
	CreateProfile(ctx context.Context, p model.Profile) (model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) (model.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// QuestionTypeSource lists the backend's question categories.
type QuestionTypeSource interface {
	QuestionTypes(ctx context.Context) ([]model.QuestionType, error)
}

// DocumentSource lists documents the backend has already processed.
type DocumentSource interface {
	ProcessedDocuments(ctx context.Context) ([]model.ProcessedDocument, error)
}

// Deps are the collaborators of a Handler. Only Extractor and Catalog are
// required.
type Deps struct {
	Extractor     scan.Extractor
	Grader        wizard.Grader
	Advisor       Advisor
	ProfileSource ProfileSource
	ProfileWriter ProfileService
	QuestionTypes QuestionTypeSource
	Documents     DocumentSource
	Sessions      *store.Sessions
	Profiles      *store.Profiles
	Catalog       *i18n.Catalog
	Metrics       *metrics.Recorder
	Logger        *slog.Logger
}

// Config tunes the workspace.
type Config struct {
	Lang           string
	AllowedOrigins []string
	HistoryLimit   int
	FlagThreshold  float64
	AutosaveDelay  time.Duration
	ScanOptions    []scan.Option
}

// Handler holds shared dependencies for HTTP handlers. The editing models
// are not safe for concurrent use, so every access goes through mu.
type Handler struct {
	logger        *slog.Logger
	catalog       *i18n.Catalog
	metrics       *metrics.Recorder
	sessions      *store.Sessions
	profiles      *store.Profiles
	grader        wizard.Grader
	advisor       Advisor
	profileSource ProfileSource
	profileWriter ProfileService
	questionTypes QuestionTypeSource
	documents     DocumentSource

	upgrader websocket.Upgrader
	feed     notify.Hub[model.Change]
	autosave *notify.Debouncer
	scan     *scan.Orchestrator
	cancels  []func()

	mu      sync.Mutex
	editor  *rubric.Editor
	review  *review.Model
	wizard  *wizard.Flow
	session string
	upload  *scan.File
}

// New creates a Handler with an empty workspace.
func New(deps Deps, cfg Config) (*Handler, error) {
	if deps.Extractor == nil {
		return nil, model.Preconditionf("handler needs an extractor")
	}
	if deps.Catalog == nil {
		return nil, model.Preconditionf("handler needs a message catalog")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		logger:        logger.With("component", "handler"),
		catalog:       deps.Catalog,
		metrics:       deps.Metrics,
		sessions:      deps.Sessions,
		profiles:      deps.Profiles,
		grader:        deps.Grader,
		advisor:       deps.Advisor,
		profileSource: deps.ProfileSource,
		profileWriter: deps.ProfileWriter,
		questionTypes: deps.QuestionTypes,
		documents:     deps.Documents,
		upgrader:      newUpgrader(cfg.AllowedOrigins),
	}

	editorOpts := []rubric.Option{rubric.WithLogger(logger)}
	reviewOpts := []review.Option{review.WithLogger(logger)}
	if cfg.HistoryLimit > 0 {
		editorOpts = append(editorOpts, rubric.WithHistoryLimit(cfg.HistoryLimit))
		reviewOpts = append(reviewOpts, review.WithHistoryLimit(cfg.HistoryLimit))
	}
	if cfg.FlagThreshold > 0 {
		reviewOpts = append(reviewOpts, review.WithFlagThreshold(cfg.FlagThreshold))
	}
	h.editor = rubric.NewEditor(editorOpts...)
	h.review = review.New(reviewOpts...)
	h.wizard = wizard.New(wizard.WithLogger(logger))

	lang := cfg.Lang
	if lang == "" {
		lang = "en"
	}
	scanOpts := []scan.Option{
		scan.WithLogger(logger),
		scan.WithTranslator(deps.Catalog.Translator(lang)),
	}
	if deps.Metrics != nil {
		scanOpts = append(scanOpts, scan.WithRecorder(deps.Metrics))
	}
	scanOpts = append(scanOpts, cfg.ScanOptions...)
	h.scan = scan.New(deps.Extractor, lockedLoader{h}, scanOpts...)

	delay := cfg.AutosaveDelay
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	h.autosave = notify.NewDebouncer(delay, h.saveReview)

	h.cancels = append(h.cancels,
		h.editor.Subscribe(h.feed.Publish),
		h.review.Subscribe(h.feed.Publish),
		h.scan.Subscribe(h.feed.Publish),
		h.wizard.Subscribe(h.feed.Publish),
		h.review.Subscribe(func(c model.Change) {
			if c.Op != "load" {
				h.autosave.Trigger()
			}
		}),
	)
	return h, nil
}

// Close flushes a pending autosave and detaches the change feed.
func (h *Handler) Close() {
	h.autosave.Flush()
	h.autosave.Stop()
	for _, cancel := range h.cancels {
		cancel()
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Get("/ws", h.handleFeed)

	r.Route("/api", func(r chi.Router) {
		r.Route("/rubric", func(r chi.Router) {
			r.Get("/", h.handleRubric)
			r.Put("/", h.handleLoadRubric)
			r.Post("/edit/{op}", h.handleRubricEdit)
			r.Post("/undo", h.handleRubricUndo)
			r.Post("/redo", h.handleRubricRedo)
			r.Get("/issues", h.handleRubricIssues)
			r.Post("/feedback", h.handleRubricFeedback)
		})
		r.Route("/review", func(r chi.Router) {
			r.Get("/", h.handleReview)
			r.Post("/edit/{op}", h.handleReviewEdit)
			r.Post("/undo", h.handleReviewUndo)
			r.Post("/redo", h.handleReviewRedo)
			r.Post("/adopt", h.handleReviewAdopt)
		})
		r.Route("/scan", func(r chi.Router) {
			r.Get("/", h.handleScanStatus)
			r.Post("/upload", h.handleUpload)
			r.Post("/page-count", h.handlePageCount)
			r.Put("/pages", h.handleSelectPages)
			r.Put("/instructions", h.handleInstructions)
			r.Post("/process", h.handleProcess)
			r.Post("/reset", h.handleScanReset)
		})
		r.Route("/wizard", func(r chi.Router) {
			r.Get("/", h.handleWizard)
			r.Put("/profile", h.handleWizardProfile)
			r.Put("/rubric", h.handleWizardRubric)
			r.Put("/answers", h.handleWizardAnswers)
			r.Put("/results", h.handleWizardResults)
			r.Post("/adopt-rubric", h.handleAdoptRubric)
			r.Post("/edit-rubric", h.handleEditWizardRubric)
			r.Post("/step/{step}", h.handleWizardStep)
			r.Post("/run", h.handleRun)
			r.Get("/export", h.handleExport)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.handleListSessions)
			r.Get("/{id}", h.handleGetSession)
			r.Post("/{id}/open", h.handleOpenSession)
			r.Delete("/{id}", h.handleDeleteSession)
		})
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.handleListProfiles)
			r.Put("/", h.handlePutProfile)
			r.Get("/{id}", h.handleGetProfile)
			r.Delete("/{id}", h.handleDeleteProfile)
		})
		r.Get("/question-types", h.handleQuestionTypes)
	})
}

// lockedLoader hands scan results to the review model under the workspace
// lock.
type lockedLoader struct{ h *Handler }

func (l lockedLoader) Load(doc review.Document) error {
	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	return l.h.review.Load(doc)
}

// saveReview writes the reviewed document back to the open session.
func (h *Handler) saveReview() {
	if h.sessions == nil {
		return
	}
	h.mu.Lock()
	id := h.session
	doc, ok := h.review.Document()
	h.mu.Unlock()
	if id == "" || !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.sessions.Update(ctx, id, sessionData(doc)); err != nil {
		h.logger.Warn("autosave failed", "session", id, "error", err)
		return
	}
	h.logger.Debug("session autosaved", "session", id)
}

// sessionData is the stored form of a document: the bare extraction.
func sessionData(doc review.Document) any {
	if doc.Kind == model.UploadRubric {
		return doc.Rubric
	}
	return doc.Student
}
