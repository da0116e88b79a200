package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/waiver"
)

func boolPtr(b bool) *bool { return &b }

func TestRunTier1Veto(t *testing.T) {
	s := &Scenario{
		Name:  "tier1 veto",
		Tiers: map[string]string{"sovereign": "tier1", "economist": "tier2", "operator": "tier2"},
		Cases: []Case{
			{
				Name: "unwaived tier1 block closes the gate",
				Evaluations: []ScenarioEvaluation{
					{Evaluator: "sovereign", Rating: "BLOCK", Confidence: 0.9},
					{Evaluator: "economist", Rating: "ENDORSE", Confidence: 0.9},
					{Evaluator: "operator", Rating: "ENDORSE", Confidence: 0.9},
				},
				Expect: Expect{Decision: "TIER1_BLOCK_NO_WAIVER", CanProceed: boolPtr(false)},
			},
			{
				Name: "all positive passes",
				Evaluations: []ScenarioEvaluation{
					{Evaluator: "sovereign", Rating: "ACCEPT"},
					{Evaluator: "economist", Rating: "ENDORSE"},
				},
				Expect: Expect{Decision: "GATES_PASSED", CanProceed: boolPtr(true)},
			},
		},
	}

	result, err := Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("all cases should pass: %+v", result.Cases)
	}
}

func TestRunWaivedBlock(t *testing.T) {
	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	s := &Scenario{
		Name:  "waived tier1 block",
		Tiers: map[string]string{"sovereign": "tier1"},
		Waivers: []waiver.Waiver{
			{
				ID:                 "wv-test",
				LinkedEvaluatorIDs: []string{"sovereign"},
				ExpiryDate:         &expiry,
			},
		},
		Cases: []Case{
			{
				Evaluations: []ScenarioEvaluation{
					{Evaluator: "sovereign", Rating: "BLOCK", Confidence: 0.9},
				},
				Expect: Expect{Decision: "GATES_PASSED", CanProceed: boolPtr(true)},
			},
		},
	}

	result, err := Run(s)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Fatalf("waived block should pass gate: %+v", result.Cases)
	}
}

func TestRunScopedWaiverOutOfContext(t *testing.T) {
	expiry := time.Now().UTC().Add(time.Hour)
	s := &Scenario{
		Name:    "scoped waiver wrong market",
		Tiers:   map[string]string{"sovereign": "tier1"},
		Context: model.Context{Market: "US"},
		Waivers: []waiver.Waiver{
			{
				ID:                 "wv-eu-only",
				LinkedEvaluatorIDs: []string{"sovereign"},
				ExpiryDate:         &expiry,
				Scope:              waiver.Scope{Markets: []string{"EU"}},
			},
		},
		Cases: []Case{
			{
				Evaluations: []ScenarioEvaluation{{Evaluator: "sovereign", Rating: "BLOCK"}},
				Expect:      Expect{Decision: "TIER1_BLOCK_NO_WAIVER"},
			},
		},
	}

	result, err := Run(s)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 0 {
		t.Fatalf("scoped waiver must not apply outside its market: %+v", result.Cases)
	}
}

func TestRunReportsFailures(t *testing.T) {
	s := &Scenario{
		Name:  "deliberate mismatch",
		Tiers: map[string]string{"sovereign": "tier1"},
		Cases: []Case{
			{
				Evaluations: []ScenarioEvaluation{{Evaluator: "sovereign", Rating: "BLOCK"}},
				Expect:      Expect{Decision: "GATES_PASSED"},
			},
		},
	}

	result, err := Run(s)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 {
		t.Fatalf("mismatch should be reported as failure: %+v", result)
	}
	if result.Cases[0].Actual != "TIER1_BLOCK_NO_WAIVER" {
		t.Errorf("actual = %s", result.Cases[0].Actual)
	}
}

func TestRunRejectsUnknownRating(t *testing.T) {
	s := &Scenario{
		Name: "bad rating",
		Cases: []Case{
			{Evaluations: []ScenarioEvaluation{{Evaluator: "x", Rating: "MAYBE"}}},
		},
	}
	if _, err := Run(s); err == nil {
		t.Error("unknown rating should error")
	}
}

func TestRunRejectsUnknownTier(t *testing.T) {
	s := &Scenario{
		Name:  "bad tier",
		Tiers: map[string]string{"x": "tier9"},
	}
	if _, err := Run(s); err == nil {
		t.Error("unknown tier should error")
	}
}

func TestLoadAndRun(t *testing.T) {
	content := `name: values escalation
tiers:
  philosopher: values_escalation
  economist: tier2
cases:
  - name: unwaived values block
    evaluations:
      - {evaluator: philosopher, rating: BLOCK, confidence: 0.85}
      - {evaluator: economist, rating: ENDORSE, confidence: 0.9}
    expect:
      decision: VALUES_ESCALATION_REQUIRED
      can_proceed: false
`
	path := filepath.Join(t.TempDir(), "values.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := LoadAndRun(path)
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if result.File != path {
		t.Errorf("file = %s", result.File)
	}
	if result.Failed != 0 {
		t.Fatalf("case should pass: %+v", result.Cases)
	}
}

func TestShippedScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no shipped scenario files found")
	}
	for _, path := range paths {
		result, err := LoadAndRun(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if result.Failed != 0 {
			t.Errorf("%s: %d failing cases: %+v", path, result.Failed, result.Cases)
		}
	}
}

func TestLoadAndRunMissingFile(t *testing.T) {
	if _, err := LoadAndRun(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Total: 2, Passed: 2},
		{Name: "bad", Total: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Expected: "GATES_PASSED", Actual: "TIER1_BLOCK_NO_WAIVER"},
		}},
	}
	out := FormatText(results)
	if !strings.Contains(out, "PASS  ok") || !strings.Contains(out, "FAIL  bad") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "2 of 3 cases passed") {
		t.Errorf("missing summary:\n%s", out)
	}
}
