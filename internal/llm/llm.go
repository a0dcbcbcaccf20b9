// Package llm extracts answer sheets and rubrics from scanned images with an
// OpenAI-compatible vision model, bypassing the grading service.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/gradewizard/internal/llm/prompts"
	"github.com/pavelanni/gradewizard/internal/model"
)

// StatusError carries the HTTP status of a failed API call.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return fmt.Sprintf("LLM API status %d: %v", e.Code, e.Err) }

func (e *StatusError) Unwrap() error { return e.Err }

// HTTPStatus returns the API response status.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Extractor wraps an OpenAI-compatible API client.
type Extractor struct {
	api     *openai.Client
	model   string
	prompts *prompts.Set
	logger  *slog.Logger
}

// New creates an extractor for modelName. An empty baseURL uses the OpenAI API.
func New(baseURL, apiKey, modelName string, logger *slog.Logger) (*Extractor, error) {
	if modelName == "" {
		return nil, errors.New("llm: model name is required")
	}
	set, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		prompts: set,
		logger:  logger.With("component", "llm", "model", modelName),
	}, nil
}

// Extract sends one scanned image to the model and returns its JSON reply.
// PDFs and other non-image files return model.ErrUnsupportedFile.
func (e *Extractor) Extract(ctx context.Context, req model.ExtractRequest) ([]byte, error) {
	mime, ok := imageMIME(req.Filename)
	if !ok {
		return nil, fmt.Errorf("llm extraction of %s: %w", req.Filename, model.ErrUnsupportedFile)
	}
	system, err := e.prompts.Build(req.UploadType, prompts.Data{
		Filename:     filepath.Base(req.Filename),
		Instructions: req.CustomInstructions,
	})
	if err != nil {
		return nil, model.Preconditionf("%v", err)
	}

	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Data)
	resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Extract this " + string(req.UploadType) + " document."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", withStatus(err))
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	e.logger.Debug("LLM response", "upload_type", req.UploadType, "raw", raw)
	return []byte(raw), nil
}

// Ping checks that the API is reachable and the key is accepted.
func (e *Extractor) Ping(ctx context.Context) error {
	if _, err := e.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM ping: %w", withStatus(err))
	}
	return nil
}

func imageMIME(filename string) (string, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".png":
		return "image/png", true
	}
	return "", false
}

func withStatus(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Code: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Code: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
