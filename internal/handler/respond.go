package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/store"
	"github.com/pavelanni/gradewizard/internal/wizard"
)

const maxJSONBody = 10 << 20

var (
	// ErrUnknownOp is returned for an edit route naming no known operation.
	ErrUnknownOp = errors.New("unknown operation")
	// ErrBadRequest wraps malformed request bodies and parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrUnavailable is returned when an optional collaborator is not configured.
	ErrUnavailable = errors.New("not configured")
)

// MapHTTPStatus maps workspace errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	var failure *scan.Failure
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &failure):
		switch failure.Class {
		case scan.ClassValidation:
			return http.StatusUnprocessableEntity
		case scan.ClassFileTooLarge:
			return http.StatusRequestEntityTooLarge
		case scan.ClassTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownOp), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, scan.ErrBusy), errors.Is(err, scan.ErrNoFile), errors.Is(err, wizard.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrValidation), errors.Is(err, store.ErrInvalid), errors.Is(err, model.ErrLastQuestion),
		errors.Is(err, model.ErrLastCriterion), errors.Is(err, model.ErrInvalidCount),
		errors.Is(err, scan.ErrInvalidPages):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrPrecondition):
		return http.StatusBadRequest
	case isUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isUpstream(err error) bool {
	var sc scan.StatusCoder
	return errors.As(err, &sc)
}

type errorBody struct {
	Error   string        `json:"error"`
	Failure *scan.Failure `json:"failure,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	body := errorBody{Error: err.Error()}
	var failure *scan.Failure
	if errors.As(err, &failure) {
		body.Error = failure.Message
		body.Failure = failure
	}
	respondJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrBadRequest, err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBadRequest, err)
	}
	return data, nil
}
