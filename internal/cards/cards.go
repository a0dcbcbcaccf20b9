// Package cards tracks the flagged/accepted review state of answer and
// question cards.
package cards

import (
	"math"

	"github.com/pavelanni/gradewizard/internal/model"
)

// State maps card ids to their review records. Flagged and accepted are
// mutually exclusive. Callers snapshot before mutating.
type State struct {
	byID map[string]model.CardRecord
}

// New returns an empty State.
func New() *State {
	return &State{byID: make(map[string]model.CardRecord)}
}

// Ensure returns the record for id, creating an unreviewed one if needed.
func (s *State) Ensure(id string) model.CardRecord {
	rec, ok := s.byID[id]
	if !ok {
		rec = model.CardRecord{ID: id}
		s.byID[id] = rec
	}
	return rec
}

// Get returns the record for id without creating it.
func (s *State) Get(id string) (model.CardRecord, bool) {
	rec, ok := s.byID[id]
	return rec, ok
}

// ToggleFlag flips flagged; a newly flagged card is no longer accepted.
func (s *State) ToggleFlag(id string) model.CardRecord {
	rec := s.Ensure(id)
	rec.Flagged = !rec.Flagged
	if rec.Flagged {
		rec.Accepted = false
	}
	s.byID[id] = rec
	return rec
}

// ToggleAccept flips accepted; a newly accepted card is no longer flagged.
func (s *State) ToggleAccept(id string) model.CardRecord {
	rec := s.Ensure(id)
	rec.Accepted = !rec.Accepted
	if rec.Accepted {
		rec.Flagged = false
	}
	s.byID[id] = rec
	return rec
}

// Flag marks id as needing review regardless of its current state.
func (s *State) Flag(id string) {
	s.byID[id] = model.CardRecord{ID: id, Flagged: true}
}

// Put stores rec under rec.ID.
func (s *State) Put(rec model.CardRecord) {
	s.byID[rec.ID] = rec
}

// Delete drops the record for id.
func (s *State) Delete(id string) {
	delete(s.byID, id)
}

// Progress counts how many of ids are flagged or accepted.
func (s *State) Progress(ids []string) model.Progress {
	p := model.Progress{Total: len(ids)}
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok && rec.Done() {
			p.Done++
		}
	}
	p.Percent = Percent(p.Done, p.Total)
	return p
}

// Percent returns round(done/total*100), or 0 when total is 0.
func Percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// Snapshot returns a copy of every record keyed by id.
func (s *State) Snapshot() map[string]model.CardRecord {
	out := make(map[string]model.CardRecord, len(s.byID))
	for id, rec := range s.byID {
		out[id] = rec
	}
	return out
}

// Restore replaces all records with a copy of snap.
func (s *State) Restore(snap map[string]model.CardRecord) {
	s.byID = make(map[string]model.CardRecord, len(snap))
	for id, rec := range snap {
		s.byID[id] = rec
	}
}

// Reset forgets every record.
func (s *State) Reset() {
	s.byID = make(map[string]model.CardRecord)
}
