package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/review"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/store"
)

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, r, fmt.Errorf("sessions: %w", ErrUnavailable))
		return
	}
	entries, err := h.sessions.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]sessionItem, 0, len(entries))
	local := make(map[string]bool, len(entries))
	for _, e := range entries {
		out = append(out, sessionItem{ID: e.ID, Source: sourceLocal, ProcessedDocument: e.Document()})
		local[e.DocumentID] = true
	}
	if h.documents != nil {
		remote, err := h.documents.ProcessedDocuments(r.Context())
		if err != nil {
			h.logger.Warn("list processed documents failed", "error", err)
		}
		for _, d := range remote {
			if !local[d.DocumentID] {
				out = append(out, sessionItem{Source: sourceBackend, ProcessedDocument: d})
			}
		}
	}
	respondJSON(w, http.StatusOK, out)
}

const (
	sourceLocal   = "local"
	sourceBackend = "backend"
)

// sessionItem is a document picker entry. Backend documents have no local
// session id.
type sessionItem struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	model.ProcessedDocument
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, r, fmt.Errorf("sessions: %w", ErrUnavailable))
		return
	}
	sess, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// handleOpenSession loads a saved extraction back into review. Later review
// edits autosave into the same session.
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, r, fmt.Errorf("sessions: %w", ErrUnavailable))
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	doc := review.Document{Kind: sess.UploadType}
	switch sess.UploadType {
	case model.UploadStudent:
		doc.Student = &model.StudentExtraction{}
		err = json.Unmarshal(sess.Data, doc.Student)
	case model.UploadRubric:
		doc.Rubric = &model.RubricExtraction{}
		err = json.Unmarshal(sess.Data, doc.Rubric)
	default:
		err = fmt.Errorf("unknown upload type %q", sess.UploadType)
	}
	if err != nil {
		h.respondError(w, r, fmt.Errorf("session %s: decode: %w", id, err))
		return
	}

	h.mu.Lock()
	err = h.reviewIdle()
	if err == nil {
		err = h.review.Load(doc)
	}
	if err == nil {
		h.session = id
	}
	v := h.reviewViewLocked(r.Context())
	h.mu.Unlock()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.respondError(w, r, fmt.Errorf("sessions: %w", ErrUnavailable))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mu.Lock()
	if h.session == id {
		h.session = ""
	}
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// handleListProfiles serves the local profile cache. With refresh=true the
// cache is first replaced by the backend's list.
func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		h.respondError(w, r, fmt.Errorf("profiles: %w", ErrUnavailable))
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if h.profileSource == nil {
			h.respondError(w, r, fmt.Errorf("profile source: %w", ErrUnavailable))
			return
		}
		remote, err := h.profileSource.Profiles(r.Context())
		if err != nil {
			h.respondError(w, r, fmt.Errorf("fetch profiles: %w", err))
			return
		}
		if err := h.profiles.Replace(r.Context(), remote); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	all, err := h.profiles.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if all == nil {
		all = []model.Profile{}
	}
	respondJSON(w, http.StatusOK, all)
}

func (h *Handler) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		h.respondError(w, r, fmt.Errorf("profiles: %w", ErrUnavailable))
		return
	}
	var p model.Profile
	if err := decodeJSON(r, &p); err != nil {
		h.respondError(w, r, err)
		return
	}
	if h.profileWriter != nil {
		if strings.TrimSpace(p.Name) == "" {
			h.respondError(w, r, fmt.Errorf("%w: profile name is required", store.ErrInvalid))
			return
		}
		var (
			remote model.Profile
			err    error
		)
		if p.ID == "" {
			remote, err = h.profileWriter.CreateProfile(r.Context(), p)
		} else {
			remote, err = h.profileWriter.UpdateProfile(r.Context(), p)
		}
		if err != nil {
			h.respondError(w, r, remoteProfileError("save", p.ID, err))
			return
		}
		p = remote
	}
	saved, err := h.profiles.Put(r.Context(), p)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// lookupProfile reads the local cache and falls back to the backend, caching
// what it finds there.
func (h *Handler) lookupProfile(ctx context.Context, id string) (model.Profile, error) {
	if h.profiles == nil && h.profileWriter == nil {
		return model.Profile{}, fmt.Errorf("profiles: %w", ErrUnavailable)
	}
	if h.profiles != nil {
		p, err := h.profiles.Get(ctx, id)
		if err == nil || !errors.Is(err, store.ErrNotFound) || h.profileWriter == nil {
			return p, err
		}
	}
	p, err := h.profileWriter.Profile(ctx, id)
	if err != nil {
		return model.Profile{}, remoteProfileError("fetch", id, err)
	}
	if h.profiles != nil {
		if _, err := h.profiles.Put(ctx, p); err != nil {
			h.logger.Warn("cache profile failed", "profile", id, "error", err)
		}
	}
	return p, nil
}

func (h *Handler) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		h.respondError(w, r, fmt.Errorf("profiles: %w", ErrUnavailable))
		return
	}
	id := chi.URLParam(r, "id")
	if h.profileWriter != nil {
		if err := h.profileWriter.DeleteProfile(r.Context(), id); err != nil {
			h.respondError(w, r, remoteProfileError("delete", id, err))
			return
		}
	}
	err := h.profiles.Delete(r.Context(), id)
	if err != nil && (h.profileWriter == nil || !errors.Is(err, store.ErrNotFound)) {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remoteProfileError reports a backend 404 as store.ErrNotFound.
func remoteProfileError(op, id string, err error) error {
	var sc scan.StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() == http.StatusNotFound {
		return fmt.Errorf("profile %s: %w", id, store.ErrNotFound)
	}
	return fmt.Errorf("%s profile %s: %w", op, id, err)
}

func (h *Handler) handleQuestionTypes(w http.ResponseWriter, r *http.Request) {
	if h.questionTypes == nil {
		h.respondError(w, r, fmt.Errorf("question types: %w", ErrUnavailable))
		return
	}
	types, err := h.questionTypes.QuestionTypes(r.Context())
	if err != nil {
		h.respondError(w, r, fmt.Errorf("fetch question types: %w", err))
		return
	}
	if types == nil {
		types = []model.QuestionType{}
	}
	respondJSON(w, http.StatusOK, types)
}
