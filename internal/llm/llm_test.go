package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/gradewizard/internal/model"
)

type chatRequest struct {
	Model          string `json:"model"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

type part struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

func newFakeAPI(t *testing.T, status int, reply string, got *chatRequest) *Extractor {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/v1/chat/completions", func(w http.ResponseWriter, req *http.Request) {
		if err := json.NewDecoder(req.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		content, _ := json.Marshal(reply)
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":` + string(content) + `},"finish_reason":"stop"}]}`))
	})
	r.Get("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"vision-1","object":"model"}]}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	e, err := New(srv.URL+"/v1", "test-key", "vision-1", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestExtractImage(t *testing.T) {
	var got chatRequest
	reply := `{"student_name":"Ann","answers":{"Q1":"4"},"confidence":0.9}`
	e := newFakeAPI(t, http.StatusOK, reply, &got)

	body, err := e.Extract(context.Background(), model.ExtractRequest{
		UploadType:         model.UploadStudent,
		Filename:           "scans/ann.JPG",
		Data:               []byte{0xff, 0xd8, 0xff},
		CustomInstructions: "Names are in the top right",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(body) != reply {
		t.Errorf("expected raw reply, got %s", body)
	}
	if got.Model != "vision-1" || got.ResponseFormat.Type != "json_object" {
		t.Errorf("unexpected request model=%q format=%q", got.Model, got.ResponseFormat.Type)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(got.Messages))
	}

	var system string
	if err := json.Unmarshal(got.Messages[0].Content, &system); err != nil {
		t.Fatalf("system content: %v", err)
	}
	if !strings.Contains(system, "Names are in the top right") || !strings.Contains(system, "ann.JPG") {
		t.Errorf("system prompt missing instructions or filename:\n%s", system)
	}

	var parts []part
	if err := json.Unmarshal(got.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content: %v", err)
	}
	if len(parts) != 2 || parts[1].Type != "image_url" {
		t.Fatalf("expected text and image parts, got %+v", parts)
	}
	if parts[1].ImageURL.URL != "data:image/jpeg;base64,/9j/" {
		t.Errorf("unexpected data URI %q", parts[1].ImageURL.URL)
	}
}

func TestExtractRejectsPDF(t *testing.T) {
	var got chatRequest
	e := newFakeAPI(t, http.StatusOK, "{}", &got)
	_, err := e.Extract(context.Background(), model.ExtractRequest{
		UploadType: model.UploadRubric, Filename: "rubric.pdf", Data: []byte("%PDF"),
	})
	if !errors.Is(err, model.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}
	if got.Model != "" {
		t.Error("expected no API call for a PDF")
	}
}

func TestExtractStatusError(t *testing.T) {
	e := newFakeAPI(t, http.StatusTooManyRequests, "", &chatRequest{})
	_, err := e.Extract(context.Background(), model.ExtractRequest{
		UploadType: model.UploadRubric, Filename: "rubric.png", Data: []byte("png"),
	})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", se.HTTPStatus())
	}
}

func TestPing(t *testing.T) {
	e := newFakeAPI(t, http.StatusOK, "", &chatRequest{})
	if err := e.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New("", "key", "", nil); err == nil {
		t.Error("expected error for empty model name")
	}
}

func TestImageMIME(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"a.jpg", "image/jpeg", true},
		{"a.jpeg", "image/jpeg", true},
		{"A.PNG", "image/png", true},
		{"a.pdf", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		got, ok := imageMIME(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("imageMIME(%q) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
