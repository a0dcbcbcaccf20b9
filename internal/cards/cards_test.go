package cards

import (
	"testing"

	"github.com/pavelanni/gradewizard/internal/model"
)

func TestEnsureCreatesOnce(t *testing.T) {
	s := New()
	if _, ok := s.Get("Q1"); ok {
		t.Fatal("expected no record before Ensure")
	}
	rec := s.Ensure("Q1")
	if rec.ID != "Q1" || rec.Flagged || rec.Accepted {
		t.Errorf("unexpected new record: %+v", rec)
	}
	s.ToggleFlag("Q1")
	if rec := s.Ensure("Q1"); !rec.Flagged {
		t.Error("Ensure must return the existing record")
	}
}

func TestMutualExclusion(t *testing.T) {
	ops := []struct {
		name string
		seq  []string
		want model.CardRecord
	}{
		{"flag", []string{"f"}, model.CardRecord{ID: "c", Flagged: true}},
		{"accept", []string{"a"}, model.CardRecord{ID: "c", Accepted: true}},
		{"flag then accept", []string{"f", "a"}, model.CardRecord{ID: "c", Accepted: true}},
		{"accept then flag", []string{"a", "f"}, model.CardRecord{ID: "c", Flagged: true}},
		{"flag twice", []string{"f", "f"}, model.CardRecord{ID: "c"}},
		{"accept flag accept", []string{"a", "f", "a"}, model.CardRecord{ID: "c", Accepted: true}},
	}
	for _, tt := range ops {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			var rec model.CardRecord
			for _, op := range tt.seq {
				if op == "f" {
					rec = s.ToggleFlag("c")
				} else {
					rec = s.ToggleAccept("c")
				}
				if rec.Flagged && rec.Accepted {
					t.Fatalf("card both flagged and accepted after %q", op)
				}
			}
			if rec != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, rec)
			}
		})
	}
}

func TestFlagClearsAccepted(t *testing.T) {
	s := New()
	s.ToggleAccept("Q1")
	s.Flag("Q1")
	rec, _ := s.Get("Q1")
	if !rec.Flagged || rec.Accepted {
		t.Errorf("expected flagged and not accepted, got %+v", rec)
	}
}

func TestProgress(t *testing.T) {
	s := New()
	s.ToggleFlag("Q1")
	s.ToggleAccept("Q2")
	s.Ensure("Q3")
	s.ToggleAccept("gone")

	p := s.Progress([]string{"Q1", "Q2", "Q3"})
	if p.Done != 2 || p.Total != 3 || p.Percent != 67 {
		t.Errorf("expected 2/3 (67%%), got %+v", p)
	}

	empty := s.Progress(nil)
	if empty != (model.Progress{}) {
		t.Errorf("expected zero progress, got %+v", empty)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := New()
	s.ToggleFlag("Q1")
	snap := s.Snapshot()

	s.ToggleAccept("Q1")
	s.ToggleAccept("Q2")
	snap["Q9"] = model.CardRecord{ID: "Q9"}

	s.Restore(snap)
	if rec, _ := s.Get("Q1"); !rec.Flagged {
		t.Errorf("expected Q1 flagged after restore, got %+v", rec)
	}
	if _, ok := s.Get("Q2"); ok {
		t.Error("expected Q2 to be gone after restore")
	}
	delete(snap, "Q1")
	if _, ok := s.Get("Q1"); !ok {
		t.Error("restore must copy the snapshot map")
	}
}
