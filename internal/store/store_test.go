package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/gradewizard/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing key is nil without error.
	got, err := s.Get(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("Get missing = %q, %v", got, err)
	}

	if err := s.Set(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("Set upsert: %v", err)
	}
	got, err = s.Get(ctx, "k")
	if err != nil || string(got) != "two" {
		t.Fatalf("expected upserted value two, got %q, %v", got, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, "k"); got != nil {
		t.Errorf("expected deleted key to be missing, got %q", got)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	kv, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer kv.Close()
	if _, ok := kv.(*Store); !ok {
		t.Errorf("expected *Store, got %T", kv)
	}

	if _, err := Open(context.Background(), "redis://bad host:6379/x"); err == nil {
		t.Error("expected error for malformed redis URL")
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(newTestStore(t))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	list, err := sessions.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}

	scanA := []byte("scan of Ann's sheet")
	idA, err := sessions.Save(ctx, "ann.pdf", model.UploadStudent, scanA, map[string]string{"student_name": "Ann"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock = clock.Add(time.Minute)
	idB, err := sessions.Save(ctx, "rubric.png", model.UploadRubric, []byte("rubric scan"), map[string]string{"exam_name": "Bio"})
	if err != nil {
		t.Fatal(err)
	}
	if idA == idB {
		t.Fatal("expected distinct ids for distinct files")
	}

	// Same file again updates the existing session.
	clock = clock.Add(time.Minute)
	again, err := sessions.Save(ctx, "ann-renamed.pdf", model.UploadStudent, scanA, map[string]string{"student_name": "Anna"})
	if err != nil {
		t.Fatal(err)
	}
	if again != idA {
		t.Errorf("expected re-save to reuse id %s, got %s", idA, again)
	}

	sess, err := sessions.Get(ctx, idA)
	if err != nil {
		t.Fatal(err)
	}
	if sess.OriginalFilename != "ann-renamed.pdf" || sess.DocumentID != DocumentID(scanA) {
		t.Errorf("unexpected session %+v", sess)
	}
	var data map[string]string
	if err := json.Unmarshal(sess.Data, &data); err != nil || data["student_name"] != "Anna" {
		t.Errorf("expected updated data, got %s", sess.Data)
	}

	list, err = sessions.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d, %v", len(list), err)
	}
	if list[0].ID != idA || list[1].ID != idB {
		t.Errorf("expected most recent first, got %s, %s", list[0].ID, list[1].ID)
	}
	if doc := list[1].Document(); doc.UploadType != model.UploadRubric || doc.OriginalFilename != "rubric.png" {
		t.Errorf("unexpected document %+v", doc)
	}

	if err := sessions.Delete(ctx, idB); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Get(ctx, idB); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := sessions.Delete(ctx, idB); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSessionsPersistAsOneBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := NewSessions(s).Save(ctx, "a.png", model.UploadStudent, []byte("a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := s.Get(ctx, SessionsKey)
	if err != nil {
		t.Fatal(err)
	}
	var blob map[string]map[string]any
	if err := json.Unmarshal(raw, &blob); err != nil {
		t.Fatalf("blob is not a JSON object: %v", err)
	}
	for _, key := range []string{"document_id", "original_filename", "upload_type", "updated_at", "data"} {
		if _, ok := blob[id][key]; !ok {
			t.Errorf("session entry missing %q", key)
		}
	}

	// A second repository over the same KV sees the session.
	if _, err := NewSessions(s).Get(ctx, id); err != nil {
		t.Errorf("expected session visible through new repository, got %v", err)
	}
}

func TestSessionsRejectCorruptBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Set(ctx, SessionsKey, []byte("[1,2]")); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSessions(s).List(ctx); err == nil {
		t.Error("expected decode error for corrupt sessions blob")
	}
}

func TestSessionsUpdate(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(newTestStore(t))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	id, err := sessions.Save(ctx, "a.png", model.UploadStudent, []byte("a"), map[string]string{"v": "1"})
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)
	if err := sessions.Update(ctx, id, map[string]string{"v": "2"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := sessions.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != `{"v":"2"}` || !got.UpdatedAt.Equal(clock) {
		t.Errorf("unexpected updated session %+v", got)
	}
	if got.OriginalFilename != "a.png" || got.DocumentID != DocumentID([]byte("a")) {
		t.Errorf("expected identity fields kept, got %+v", got)
	}
	if err := sessions.Update(ctx, "nope", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentID(t *testing.T) {
	a := DocumentID([]byte("same"))
	if a != DocumentID([]byte("same")) {
		t.Error("expected stable fingerprint")
	}
	if a == DocumentID([]byte("other")) {
		t.Error("expected different fingerprints for different data")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	profiles := NewProfiles(s)

	list, err := profiles.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}

	if _, err := profiles.Put(ctx, model.Profile{}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unnamed profile, got %v", err)
	}

	strict, err := profiles.Put(ctx, model.Profile{Name: "Strict"})
	if err != nil {
		t.Fatal(err)
	}
	if strict.ID == "" {
		t.Fatal("expected generated id")
	}
	if _, err := profiles.Put(ctx, model.Profile{ID: "lenient", Name: "Lenient"}); err != nil {
		t.Fatal(err)
	}
	if _, err := profiles.Put(ctx, model.Profile{ID: strict.ID, Name: "Very strict"}); err != nil {
		t.Fatal(err)
	}

	list, _ = profiles.List(ctx)
	if len(list) != 2 || list[0].Name != "Very strict" || list[1].ID != "lenient" {
		t.Fatalf("expected update in place and insertion order, got %+v", list)
	}

	got, err := profiles.Get(ctx, "lenient")
	if err != nil || got.Name != "Lenient" {
		t.Errorf("Get = %+v, %v", got, err)
	}

	if err := profiles.Delete(ctx, strict.ID); err != nil {
		t.Fatal(err)
	}
	if err := profiles.Delete(ctx, strict.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	raw, _ := s.Get(ctx, ProfilesKey)
	if string(raw) != `[{"id":"lenient","name":"Lenient"}]` {
		t.Errorf("expected profile array blob, got %s", raw)
	}

	if err := profiles.Replace(ctx, nil); err != nil {
		t.Fatal(err)
	}
	raw, _ = s.Get(ctx, ProfilesKey)
	if string(raw) != `[]` {
		t.Errorf("expected empty array after replace, got %s", raw)
	}
}
