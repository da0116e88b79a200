package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/conclave/internal/config"
	"github.com/ppiankov/conclave/internal/gate"
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

var (
	gateEvals  []string
	gateConfig string
	gateJSON   bool
)

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.Flags().StringArrayVar(&gateEvals, "eval", nil, "Evaluation as evaluator:RATING[:confidence], repeatable (required)")
	gateCmd.Flags().StringVar(&gateConfig, "config", "", "Path to engine config YAML")
	gateCmd.Flags().BoolVar(&gateJSON, "json", false, "Emit the gate status as JSON")
	gateCmd.MarkFlagRequired("eval")
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the convergence gate over a set of evaluations",
	Long: "Dry-runs the tiered non-compensatory gate without deliberating:\n" +
		"unwaived tier-one or values blocks close the gate regardless of every\n" +
		"other rating. Waivers are read fresh from the waiver store.\n\n" +
		"  conclave gate --eval sovereign:BLOCK --eval economist:ENDORSE:0.9\n\n" +
		"Exit code 0 if the gate opens, 1 if it stays closed.",
	RunE: runGate,
}

func runGate(cmd *cobra.Command, args []string) error {
	engine, err := config.Load(gateConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tiers, err := tier.Load(engine.TierMap)
	if err != nil {
		return fmt.Errorf("load tier map: %w", err)
	}

	evals, err := parseEvalFlags(gateEvals)
	if err != nil {
		return err
	}

	waiverDir := engine.WaiverDir
	if waiverDir == "" {
		waiverDir = waiver.DefaultDir()
	}
	reg, err := waiver.LoadRegister(waiverDir)
	if err != nil {
		// Gate without waivers rather than fail: the check only gets stricter.
		fmt.Fprintf(os.Stderr, "warning: waiver register unavailable: %v\n", err)
		reg = nil
	}

	status := gate.Evaluate(evals, tiers, reg, engine.Context)

	if gateJSON {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Printf("Decision: %s\n", status.Decision)
		fmt.Printf("Proceed:  %v\n", status.CanProceed)
		if status.Message != "" {
			fmt.Printf("Message:  %s\n", status.Message)
		}
		for _, w := range status.WaiversApplied {
			fmt.Printf("Waiver:   %s covering %s\n", w.WaiverID, w.EvaluatorID)
		}
	}

	if !status.CanProceed {
		os.Exit(1)
	}
	return nil
}

// parseEvalFlags turns evaluator:RATING[:confidence] strings into evaluations.
func parseEvalFlags(specs []string) ([]model.Evaluation, error) {
	evals := make([]model.Evaluation, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --eval %q: want evaluator:RATING[:confidence]", spec)
		}
		r, err := model.ParseRating(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid --eval %q: %w", spec, err)
		}
		conf := 0.8
		if len(parts) > 2 {
			conf, err = strconv.ParseFloat(parts[2], 64)
			if err != nil || conf < 0 || conf > 1 {
				return nil, fmt.Errorf("invalid --eval %q: confidence must be in [0,1]", spec)
			}
		}
		evals = append(evals, model.Evaluation{
			EvaluatorID: parts[0],
			Rating:      r,
			Confidence:  conf,
		})
	}
	return evals, nil
}
