package scan

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/pavelanni/gradewizard/internal/model"
)

var (
	// ErrBusy is returned while a processing run is in flight.
	ErrBusy = errors.New("processing already in progress")
	// ErrInvalidFile is wrapped by SubmitFile validation failures.
	ErrInvalidFile = errors.New("invalid file")
	// ErrNoFile is returned when an operation needs a submitted file.
	ErrNoFile = errors.New("no file submitted")
	// ErrShape marks a successful response whose payload is structurally invalid.
	ErrShape = errors.New("unexpected response shape")
)

// Class is the error classification shown to users.
type Class string

const (
	ClassValidation   Class = "validation"
	ClassTimeout      Class = "timeout"
	ClassNetwork      Class = "network"
	ClassFileTooLarge Class = "file_too_large"
	ClassShape        Class = "backend_shape"
	ClassOther        Class = "other"
)

// Retryable reports whether a failure of this class is worth another attempt.
func (c Class) Retryable() bool {
	switch c {
	case ClassTimeout, ClassNetwork, ClassOther:
		return true
	}
	return false
}

// Failure is a terminal, user-presentable processing error.
type Failure struct {
	Class    Class  `json:"class"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
	Err      error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Title + ": " + f.Message + " (" + f.Err.Error() + ")"
	}
	return f.Title + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps a transport or extraction error to a Class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, model.ErrUnsupportedFile) {
		return ClassValidation
	}
	if errors.Is(err, ErrShape) {
		return ClassShape
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassNetwork
	}
	return ClassOther
}

func classifyStatus(code int) Class {
	switch code {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ClassTimeout
	case http.StatusRequestEntityTooLarge:
		return ClassFileTooLarge
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return ClassValidation
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return ClassNetwork
	}
	return ClassOther
}
