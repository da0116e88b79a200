package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/conclave/internal/driver"
	"github.com/ppiankov/conclave/internal/model"
)

var (
	runTitle    string
	runBody     string
	runFile     string
	runConfig   string
	runAuditLog string
	runJSON     bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runTitle, "title", "", "Proposal title")
	runCmd.Flags().StringVar(&runBody, "body", "", "Proposal body text")
	runCmd.Flags().StringVar(&runFile, "file", "", "Read proposal body from a file (overrides --body)")
	runCmd.Flags().StringVar(&runConfig, "config", "", "Path to engine config YAML")
	runCmd.Flags().StringVar(&runAuditLog, "audit-log", "", "Path to audit log JSONL file")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Emit the full outcome as JSON")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliberate a proposal to termination",
	Long: "Runs the full bounded deliberation loop over the configured evaluator\n" +
		"roster: evaluate, detect and resolve tensions, gate, check consensus,\n" +
		"repeat until convergence or the round cap forces termination.\n\n" +
		"Exit code 0 if the gates open, 1 if the proposal stays blocked.",
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFile != "" {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return fmt.Errorf("read proposal file: %w", err)
		}
		runBody = string(data)
	}
	if runTitle == "" && runBody == "" {
		return fmt.Errorf("a proposal needs --title, --body, or --file")
	}

	p, err := newPipeline(runConfig, runAuditLog)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outcome, err := p.driver.Run(ctx, model.Proposal{Title: runTitle, Body: runBody})
	if err != nil {
		return err
	}

	if runJSON {
		out, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		printOutcome(outcome)
	}

	if !outcome.Gate.CanProceed {
		os.Exit(1)
	}
	return nil
}

func printOutcome(o *driver.Outcome) {
	fmt.Printf("Deliberation %s\n", o.DeliberationID)
	fmt.Printf("Decision:  %s\n", o.Gate.Decision)
	fmt.Printf("Proceed:   %v\n", o.Gate.CanProceed)
	fmt.Printf("Rounds:    %d", o.Convergence.RoundCount)
	if o.Convergence.Forced {
		fmt.Printf(" (forced at cap)")
	}
	fmt.Println()
	if o.Convergence.Reason != "" {
		fmt.Printf("Reason:    %s\n", o.Convergence.Reason)
	}

	if len(o.Proposal.Amendments) > 0 {
		fmt.Println()
		fmt.Println("Amendments:")
		for _, a := range o.Proposal.Amendments {
			fmt.Printf("  - %s\n", a)
		}
	}

	if o.Review != nil {
		fmt.Println()
		fmt.Printf("Conditionality: %s\n", o.Review.Review.Verdict)
		if o.Review.Review.Critique != "" {
			fmt.Printf("Critique:       %s\n", o.Review.Review.Critique)
		}
		if o.Review.PatchMerged {
			fmt.Println("Mechanism patch merged into the proposal.")
		}
	}

	if len(o.Gate.WaiversApplied) > 0 {
		fmt.Println()
		fmt.Println("Waivers applied:")
		for _, w := range o.Gate.WaiversApplied {
			fmt.Printf("  %s covering %s\n", w.WaiverID, w.EvaluatorID)
		}
	}
}
