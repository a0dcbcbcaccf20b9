package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/scan"
)

// maxUploadBytes caps how much of an upload is read. Anything above the
// file size limit is rejected by the orchestrator with a validation failure.
const maxUploadBytes = 64 << 20

type processView struct {
	Status  scan.Status `json:"status"`
	Session string      `json:"session,omitempty"`
	Review  reviewView  `json:"review"`
}

func (h *Handler) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.scan.Status())
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(w, r, fmt.Errorf("%w: parse upload: %v", ErrBadRequest, err))
		return
	}
	kind := model.UploadStudent
	if s := r.FormValue("upload_type"); s != "" {
		k, err := model.ParseUploadType(s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		kind = k
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: missing file field: %v", ErrBadRequest, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: read upload: %v", ErrBadRequest, err))
		return
	}

	f := scan.File{Name: header.Filename, Data: data}
	if err := h.scan.SubmitFile(f, kind); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mu.Lock()
	h.upload = &f
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, h.scan.Status())
}

func (h *Handler) handlePageCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.scan.FetchPageCount(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"page_count": n})
}

func (h *Handler) handleSelectPages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pages string `json:"pages"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.scan.SelectPages(req.Pages); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.scan.Status())
}

func (h *Handler) handleInstructions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instructions string `json:"instructions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.scan.SetInstructions(req.Instructions); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.scan.Status())
}

// handleProcess runs extraction to completion. Clients follow retries and
// stage changes on the change feed.
func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := h.scan.Process(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	status := h.scan.Status()

	h.mu.Lock()
	doc, _ := h.review.Document()
	upload := h.upload
	h.mu.Unlock()

	session := ""
	if h.sessions != nil && upload != nil {
		id, err := h.sessions.Save(r.Context(), upload.Name, status.UploadType, upload.Data, sessionData(doc))
		if err != nil {
			h.logger.Warn("save session failed", "file", upload.Name, "error", err)
		} else {
			session = id
		}
	}

	h.mu.Lock()
	h.session = session
	v := processView{Status: status, Session: session, Review: h.reviewViewLocked(r.Context())}
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) handleScanReset(w http.ResponseWriter, r *http.Request) {
	if err := h.scan.Reset(); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mu.Lock()
	h.upload = nil
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, h.scan.Status())
}
