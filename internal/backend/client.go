// Package backend is the HTTP client for the grading service API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/gradewizard/internal/model"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: status %d", e.Code)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Client talks to the grading service.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the service at baseURL. Request deadlines come
// from the caller's context.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	c := &Client{base: u, http: &http.Client{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c, nil
}

// Extract uploads a scan to the student or rubric processing endpoint and
// returns the raw extraction JSON.
func (c *Client) Extract(ctx context.Context, req model.ExtractRequest) ([]byte, error) {
	var path string
	switch req.UploadType {
	case model.UploadStudent:
		path = "/api/process-student-scan"
	case model.UploadRubric:
		path = "/api/process-rubric-scan"
	default:
		return nil, model.Preconditionf("unknown upload type %q", req.UploadType)
	}
	fields := map[string]string{}
	if req.CustomInstructions != "" {
		fields["custom_instructions"] = req.CustomInstructions
	}
	if req.Pages != "" {
		fields["pages"] = req.Pages
	}
	return c.upload(ctx, path, req.Filename, req.Data, fields)
}

type pageCountResponse struct {
	PageCount int `json:"page_count"`
}

// PageCount asks the service how many pages a PDF has.
func (c *Client) PageCount(ctx context.Context, filename string, data []byte) (int, error) {
	body, err := c.upload(ctx, "/api/pdf-page-count", filename, data, nil)
	if err != nil {
		return 0, err
	}
	var resp pageCountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode page count: %w", err)
	}
	return resp.PageCount, nil
}

// Slice asks the service to cut a PDF down to pages and returns the new PDF.
func (c *Client) Slice(ctx context.Context, filename string, data []byte, pages string) ([]byte, error) {
	return c.upload(ctx, "/api/pdf-slice", filename, data, map[string]string{"pages": pages})
}

// Grade submits a grading request and returns the raw results JSON.
func (c *Client) Grade(ctx context.Context, req model.GradeRequest) ([]byte, error) {
	return c.doJSON(ctx, http.MethodPost, "/api/grade/exam", req, nil)
}

// Profiles lists grading profiles.
func (c *Client) Profiles(ctx context.Context) ([]model.Profile, error) {
	var out []model.Profile
	_, err := c.doJSON(ctx, http.MethodGet, "/api/profiles", nil, &out)
	return out, err
}

// Profile fetches one profile.
func (c *Client) Profile(ctx context.Context, id string) (model.Profile, error) {
	var out model.Profile
	_, err := c.doJSON(ctx, http.MethodGet, "/api/profiles/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateProfile creates a profile and returns it as stored.
func (c *Client) CreateProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	var out model.Profile
	_, err := c.doJSON(ctx, http.MethodPost, "/api/profiles", p, &out)
	return out, err
}

// UpdateProfile replaces a profile.
func (c *Client) UpdateProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	var out model.Profile
	_, err := c.doJSON(ctx, http.MethodPut, "/api/profiles/"+url.PathEscape(p.ID), p, &out)
	return out, err
}

// DeleteProfile removes a profile.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/profiles/"+url.PathEscape(id), nil, nil)
	return err
}

// QuestionTypes lists the question categories the service knows.
func (c *Client) QuestionTypes(ctx context.Context) ([]model.QuestionType, error) {
	var out []model.QuestionType
	_, err := c.doJSON(ctx, http.MethodGet, "/api/question-types", nil, &out)
	return out, err
}

// Feedback is the service's commentary on a rubric.
type Feedback struct {
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RubricFeedback asks the service to critique a rubric.
func (c *Client) RubricFeedback(ctx context.Context, r model.Rubric) (Feedback, error) {
	var out Feedback
	_, err := c.doJSON(ctx, http.MethodPost, "/api/rubric-feedback", r, &out)
	return out, err
}

// ProcessedDocuments lists the service's saved extraction sessions.
func (c *Client) ProcessedDocuments(ctx context.Context) ([]model.ProcessedDocument, error) {
	var out []model.ProcessedDocument
	_, err := c.doJSON(ctx, http.MethodGet, "/api/processed-documents", nil, &out)
	return out, err
}

func (c *Client) upload(ctx context.Context, path, filename string, data []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	data, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return nil, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug("backend call", "method", method, "path", path, "status", resp.StatusCode,
		"bytes", len(data), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
