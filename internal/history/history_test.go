package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	recs := []Record{
		{ProposalID: "p-1", ProposalTitle: "market entry", Decision: "GATES_PASSED", Converged: true, Rounds: 2, AvgConfidence: 0.82, CLAVerdict: "STRUCTURALLY_CREDIBLE"},
		{ProposalID: "p-2", ProposalTitle: "pricing change", Decision: "TIER1_BLOCK_NO_WAIVER", Converged: true, Forced: true, Rounds: 3, AvgConfidence: 0.55},
	}
	for _, r := range recs {
		if err := store.Record(r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	// Newest first.
	if got[0].ProposalID != "p-2" {
		t.Errorf("first record = %s, want p-2", got[0].ProposalID)
	}
	if !got[0].Forced {
		t.Error("forced flag lost on round trip")
	}
	if got[1].CLAVerdict != "STRUCTURALLY_CREDIBLE" {
		t.Errorf("cla_verdict = %q", got[1].CLAVerdict)
	}
	if got[0].FinalizedAt.IsZero() {
		t.Error("finalized_at should be set on insert")
	}
	if time.Since(got[0].FinalizedAt) > time.Minute {
		t.Error("finalized_at should be recent")
	}
}

func TestRecentLimit(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for i := 0; i < 5; i++ {
		if err := store.Record(Record{ProposalID: "p", ProposalTitle: "t", Decision: "GATES_PASSED", Converged: true, Rounds: 1}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("got %d records, want 3", len(got))
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Record(Record{ProposalID: "p-1", ProposalTitle: "t", Decision: "GATES_PASSED", Converged: true, Rounds: 1}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	got, err := store2.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(got))
	}
}
