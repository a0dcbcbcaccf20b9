package store

import (
	"cmp"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/pavelanni/gradewizard/internal/model"
)

// SessionsKey holds the session map. A schema change needs a new suffix;
// old keys are not migrated.
const SessionsKey = "gradewizard.sessions.v1"

// Session is one saved extraction result.
type Session struct {
	DocumentID       string           `json:"document_id"`
	OriginalFilename string           `json:"original_filename"`
	UploadType       model.UploadType `json:"upload_type"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Data             json.RawMessage  `json:"data"`
}

// Entry is a session with its id.
type Entry struct {
	ID string `json:"id"`
	Session
}

// Document returns the entry's listing form.
func (e Entry) Document() model.ProcessedDocument {
	return model.ProcessedDocument{
		DocumentID:       e.DocumentID,
		OriginalFilename: e.OriginalFilename,
		UploadType:       e.UploadType,
		UpdatedAt:        e.UpdatedAt,
	}
}

// DocumentID fingerprints file contents, so saving the same file again
// updates its existing session.
func DocumentID(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Sessions is the saved-session repository.
type Sessions struct {
	kv  KV
	now func() time.Time
	mu  sync.Mutex
}

// NewSessions returns a repository over kv.
func NewSessions(kv KV) *Sessions {
	return &Sessions{kv: kv, now: time.Now}
}

// Save stores data as the session for file and returns the session id.
func (s *Sessions) Save(ctx context.Context, filename string, kind model.UploadType, file []byte, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode session data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return "", err
	}

	docID := DocumentID(file)
	id := ""
	for k, sess := range all {
		if sess.DocumentID == docID && sess.UploadType == kind {
			id = k
			break
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	all[id] = Session{
		DocumentID:       docID,
		OriginalFilename: filename,
		UploadType:       kind,
		UpdatedAt:        s.now().UTC(),
		Data:             raw,
	}
	if err := s.write(ctx, all); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces the data of an existing session.
func (s *Sessions) Update(ctx context.Context, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	sess, ok := all[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	sess.Data = raw
	sess.UpdatedAt = s.now().UTC()
	all[id] = sess
	return s.write(ctx, all)
}

// Get returns one session.
func (s *Sessions) Get(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return Session{}, err
	}
	sess, ok := all[id]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

// List returns all sessions, most recently updated first.
func (s *Sessions) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for id, sess := range all {
		out = append(out, Entry{ID: id, Session: sess})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Delete removes one session.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := all[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(all, id)
	return s.write(ctx, all)
}

func (s *Sessions) load(ctx context.Context) (map[string]Session, error) {
	raw, err := s.kv.Get(ctx, SessionsKey)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	all := make(map[string]Session)
	if len(raw) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return all, nil
}

func (s *Sessions) write(ctx context.Context, all map[string]Session) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	return s.kv.Set(ctx, SessionsKey, raw)
}
