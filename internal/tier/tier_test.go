package tier

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTier(t *testing.T) {
	for _, s := range []string{"tier1", "tier2", "tier3", "values_escalation"} {
		if _, err := ParseTier(s); err != nil {
			t.Errorf("ParseTier(%q) returned error: %v", s, err)
		}
	}
	for _, s := range []string{"", "tier4", "TIER1", "values"} {
		if _, err := ParseTier(s); err == nil {
			t.Errorf("ParseTier(%q) should have failed", s)
		}
	}
}

func TestDefaultMapAssignments(t *testing.T) {
	m := DefaultMap()

	if a := m.For("sovereign"); a.Tier != Tier1 || a.BlockResolution != RedesignOrWaiver {
		t.Errorf("sovereign assignment: %+v", a)
	}
	if a := m.For("philosopher"); a.Tier != ValuesEscalation {
		t.Errorf("philosopher assignment: %+v", a)
	}
}

func TestUnknownEvaluatorDefaultsToTier2(t *testing.T) {
	m := DefaultMap()
	a := m.For("someone-new")
	if a.Tier != Tier2 {
		t.Errorf("unknown evaluator tier = %s, want tier2", a.Tier)
	}
	if a.BlockResolution != RedesignOrExplicitTradeoff {
		t.Errorf("unknown evaluator resolution = %s", a.BlockResolution)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.For("sovereign").Tier != Tier1 {
		t.Error("missing file should yield default map")
	}
}

func TestLoadOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")

	good := `evaluators:
  auditor:
    tier: tier1
  sage:
    tier: values_escalation
`
	if err := os.WriteFile(path, []byte(good), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.For("auditor").Tier != Tier1 {
		t.Errorf("auditor tier = %s", m.For("auditor").Tier)
	}
	// block_resolution omitted in the file: tier default applies.
	if m.For("auditor").BlockResolution != RedesignOrWaiver {
		t.Errorf("auditor resolution = %s", m.For("auditor").BlockResolution)
	}
	if m.For("sage").BlockResolution != EscalateValuesReport {
		t.Errorf("sage resolution = %s", m.For("sage").BlockResolution)
	}

	bad := `evaluators:
  auditor:
    tier: tier9
`
	if err := os.WriteFile(path, []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should reject unknown tier strings")
	}
}

func TestDefaultMapYAMLParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	if err := os.WriteFile(path, []byte(DefaultMapYAML()), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("template should load cleanly: %v", err)
	}
	if m.For("sovereign").Tier != Tier1 {
		t.Errorf("sovereign tier = %s", m.For("sovereign").Tier)
	}
	if m.For("philosopher").Tier != ValuesEscalation {
		t.Errorf("philosopher tier = %s", m.For("philosopher").Tier)
	}
}
