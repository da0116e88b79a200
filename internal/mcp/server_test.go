package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/conclave/internal/waiver"
)

// newTestServer builds a server over rule-based evaluators so tests need no
// network.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	waiverDir := filepath.Join(root, "waivers")

	cfgYAML := fmt.Sprintf(`max_rounds: 2
waiver_dir: %s
conditionality_review: false
evaluators:
  - id: sovereign
    kind: rules
    rules:
      - contains: "surrender control"
        rating: BLOCK
        confidence: 0.9
        reasoning: "cedes autonomy"
  - id: economist
    kind: rules
    rules:
      - contains: "unprofitable"
        rating: WARN
        confidence: 0.7
`, waiverDir)

	cfgPath := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := New(Config{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func grantTestWaiver(t *testing.T, s *Server, evaluatorID string) *waiver.Waiver {
	t.Helper()
	store, err := waiver.NewStore(s.waiverDir)
	if err != nil {
		t.Fatal(err)
	}
	expiry := time.Now().UTC().Add(24 * time.Hour)
	w, err := store.Grant(waiver.Waiver{
		GrantedBy:          "board",
		Reason:             "accepted tradeoff for launch window",
		PromisedMitigation: "renegotiate within two quarters",
		ReviewDate:         time.Now().UTC().Add(30 * 24 * time.Hour),
		ExpiryDate:         &expiry,
		LinkedEvaluatorIDs: []string{evaluatorID},
	})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestGateCheckPasses(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleGateCheck(context.Background(), &mcpsdk.CallToolRequest{}, GateCheckInput{
		Evaluations: []EvaluationInput{
			{Evaluator: "sovereign", Rating: "ACCEPT", Confidence: 0.8},
			{Evaluator: "economist", Rating: "ENDORSE", Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success result")
	}
	if !out.CanProceed || out.Decision != "GATES_PASSED" {
		t.Errorf("output = %+v", out)
	}
}

func TestGateCheckBlocked(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleGateCheck(context.Background(), &mcpsdk.CallToolRequest{}, GateCheckInput{
		Evaluations: []EvaluationInput{
			{Evaluator: "sovereign", Rating: "BLOCK", Confidence: 0.9},
			{Evaluator: "economist", Rating: "ENDORSE", Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for blocked gate")
	}
	if out.CanProceed || out.Decision != "TIER1_BLOCK_NO_WAIVER" {
		t.Errorf("output = %+v", out)
	}
}

func TestGateCheckWaived(t *testing.T) {
	s := newTestServer(t)
	w := grantTestWaiver(t, s, "sovereign")

	result, out, err := s.handleGateCheck(context.Background(), &mcpsdk.CallToolRequest{}, GateCheckInput{
		Evaluations: []EvaluationInput{
			{Evaluator: "sovereign", Rating: "BLOCK", Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != nil && result.IsError {
		t.Fatal("waived block should pass the gate")
	}
	if len(out.WaiversApplied) != 1 || out.WaiversApplied[0].WaiverID != w.ID {
		t.Errorf("waivers applied = %+v", out.WaiversApplied)
	}
}

func TestGateCheckRejectsUnknownRating(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.handleGateCheck(context.Background(), &mcpsdk.CallToolRequest{}, GateCheckInput{
		Evaluations: []EvaluationInput{{Evaluator: "x", Rating: "MAYBE"}},
	})
	if err == nil {
		t.Error("unknown rating should error")
	}
}

func TestGateCheckRequiresEvaluations(t *testing.T) {
	s := newTestServer(t)
	if _, _, err := s.handleGateCheck(context.Background(), &mcpsdk.CallToolRequest{}, GateCheckInput{}); err == nil {
		t.Error("empty evaluation set should error")
	}
}

func TestDeliberatePasses(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleDeliberate(context.Background(), &mcpsdk.CallToolRequest{}, DeliberateInput{
		Title: "expand support hours",
		Body:  "add a second shift for EU coverage",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success")
	}
	if !out.Converged || out.Forced {
		t.Errorf("output = %+v", out)
	}
	if out.Decision != "GATES_PASSED" {
		t.Errorf("decision = %s", out.Decision)
	}
	if out.DeliberationID == "" {
		t.Error("missing deliberation ID")
	}
}

func TestDeliberateBlockedIsForced(t *testing.T) {
	s := newTestServer(t)

	result, out, err := s.handleDeliberate(context.Background(), &mcpsdk.CallToolRequest{}, DeliberateInput{
		Title: "partnership",
		Body:  "we surrender control of the platform roadmap",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || !result.IsError {
		t.Fatal("blocked deliberation should be an error result")
	}
	if !out.Forced {
		t.Error("persistent block should force at the round cap")
	}
	if out.Rounds != 2 {
		t.Errorf("rounds = %d, want cap 2", out.Rounds)
	}
}

func TestDeliberateRequiresContent(t *testing.T) {
	s := newTestServer(t)
	if _, _, err := s.handleDeliberate(context.Background(), &mcpsdk.CallToolRequest{}, DeliberateInput{}); err == nil {
		t.Error("empty proposal should error")
	}
}

func TestWaiverList(t *testing.T) {
	s := newTestServer(t)
	w := grantTestWaiver(t, s, "sovereign")

	store, err := waiver.NewStore(s.waiverDir)
	if err != nil {
		t.Fatal(err)
	}
	revoked := grantTestWaiver(t, s, "security")
	if err := store.Revoke(revoked.ID); err != nil {
		t.Fatal(err)
	}

	_, out, err := s.handleWaiverList(context.Background(), &mcpsdk.CallToolRequest{}, WaiverListInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Waivers) != 2 {
		t.Fatalf("waivers = %d, want 2", len(out.Waivers))
	}

	_, out, err = s.handleWaiverList(context.Background(), &mcpsdk.CallToolRequest{}, WaiverListInput{Status: "active"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Waivers) != 1 || out.Waivers[0].ID != w.ID {
		t.Errorf("active filter = %+v", out.Waivers)
	}
}
