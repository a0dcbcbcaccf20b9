package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/gradewizard/internal/model"
)

type captured struct {
	path         string
	filename     string
	data         string
	instructions string
	pages        string
}

func newFakeBackend(t *testing.T, got *captured) *Client {
	t.Helper()
	r := chi.NewRouter()
	scan := func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := req.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		*got = captured{
			path:         req.URL.Path,
			filename:     hdr.Filename,
			data:         string(b),
			instructions: req.FormValue("custom_instructions"),
			pages:        req.FormValue("pages"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"student_name":"Ann","answers":{"Q1":"4"}}`))
	}
	r.Post("/api/process-student-scan", scan)
	r.Post("/api/process-rubric-scan", scan)
	r.Post("/api/pdf-page-count", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"page_count":7}`))
	})
	r.Post("/api/pdf-slice", func(w http.ResponseWriter, req *http.Request) {
		_ = req.ParseMultipartForm(1 << 20)
		w.Write([]byte("%PDF-sliced-" + req.FormValue("pages")))
	})
	r.Post("/api/grade/exam", func(w http.ResponseWriter, req *http.Request) {
		var gr model.GradeRequest
		if err := json.NewDecoder(req.Body).Decode(&gr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if gr.GradingContext.ProfileID == "" {
			http.Error(w, `{"detail":"profile required"}`, http.StatusUnprocessableEntity)
			return
		}
		w.Write([]byte(`{"profileId":"` + gr.GradingContext.ProfileID + `","averageScore":7,"items":[]}`))
	})
	r.Get("/api/profiles", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id":"p1","name":"Strict"},{"id":"p2","name":"Lenient"}]`))
	})
	r.Get("/api/profiles/{id}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != "p1" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"id":"p1","name":"Strict"}`))
	})
	r.Delete("/api/profiles/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/question-types", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id":"short","name":"Short answer"}]`))
	})
	r.Post("/api/rubric-feedback", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"feedback":"Looks balanced","suggestions":["Add a criterion to Q2"]}`))
	})
	r.Get("/api/processed-documents", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestExtract(t *testing.T) {
	var got captured
	c := newFakeBackend(t, &got)

	tests := []struct {
		kind model.UploadType
		path string
	}{
		{model.UploadStudent, "/api/process-student-scan"},
		{model.UploadRubric, "/api/process-rubric-scan"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			body, err := c.Extract(context.Background(), model.ExtractRequest{
				UploadType:         tt.kind,
				Filename:           "sheet.pdf",
				Data:               []byte("pdf-bytes"),
				CustomInstructions: "pencil",
				Pages:              "1-2",
			})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.path != tt.path {
				t.Errorf("expected path %s, got %s", tt.path, got.path)
			}
			if got.filename != "sheet.pdf" || got.data != "pdf-bytes" {
				t.Errorf("unexpected upload %+v", got)
			}
			if got.instructions != "pencil" || got.pages != "1-2" {
				t.Errorf("expected form fields forwarded, got %+v", got)
			}
			if len(body) == 0 {
				t.Error("expected response body")
			}
		})
	}

	if _, err := c.Extract(context.Background(), model.ExtractRequest{UploadType: "essay"}); !errors.Is(err, model.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

func TestExtractOmitsEmptyFields(t *testing.T) {
	var got captured
	c := newFakeBackend(t, &got)
	if _, err := c.Extract(context.Background(), model.ExtractRequest{
		UploadType: model.UploadStudent, Filename: "a.png", Data: []byte("x"),
	}); err != nil {
		t.Fatal(err)
	}
	if got.instructions != "" || got.pages != "" {
		t.Errorf("expected no optional fields, got %+v", got)
	}
}

func TestPDFEndpoints(t *testing.T) {
	c := newFakeBackend(t, &captured{})
	n, err := c.PageCount(context.Background(), "a.pdf", []byte("x"))
	if err != nil || n != 7 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
	out, err := c.Slice(context.Background(), "a.pdf", []byte("x"), "2-3")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "%PDF-sliced-2-3" {
		t.Errorf("unexpected slice body %q", out)
	}
}

func TestGrade(t *testing.T) {
	c := newFakeBackend(t, &captured{})
	body, err := c.Grade(context.Background(), model.GradeRequest{GradingContext: model.GradingContext{ProfileID: "p1"}})
	if err != nil {
		t.Fatal(err)
	}
	var res model.Results
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.AverageScore != 7 {
		t.Errorf("expected average 7, got %v", res.AverageScore)
	}

	_, err = c.Grade(context.Background(), model.GradeRequest{})
	var se *StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 StatusError, got %v", err)
	}
	if se.Body != `{"detail":"profile required"}` {
		t.Errorf("unexpected body %q", se.Body)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	c := newFakeBackend(t, &captured{})
	ctx := context.Background()

	profiles, err := c.Profiles(ctx)
	if err != nil || len(profiles) != 2 || profiles[1].Name != "Lenient" {
		t.Fatalf("Profiles = %+v, %v", profiles, err)
	}
	p, err := c.Profile(ctx, "p1")
	if err != nil || p.Name != "Strict" {
		t.Fatalf("Profile = %+v, %v", p, err)
	}
	if _, err := c.Profile(ctx, "missing"); err == nil {
		t.Error("expected error for missing profile")
	}
	if err := c.DeleteProfile(ctx, "p1"); err != nil {
		t.Errorf("DeleteProfile: %v", err)
	}
	types, err := c.QuestionTypes(ctx)
	if err != nil || len(types) != 1 || types[0].ID != "short" {
		t.Fatalf("QuestionTypes = %+v, %v", types, err)
	}
	fb, err := c.RubricFeedback(ctx, model.Rubric{ExamName: "Bio"})
	if err != nil || len(fb.Suggestions) != 1 {
		t.Fatalf("RubricFeedback = %+v, %v", fb, err)
	}

	_, err = c.ProcessedDocuments(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 StatusError, got %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://host", "://bad", "localhost:8000"} {
		if _, err := New(u); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}
