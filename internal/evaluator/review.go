package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/neurorouter"

	"github.com/ppiankov/conclave/internal/model"
)

const reviewContract = `You are the conditionality reviewer. The group has converged; your job is
to judge whether the agreement is structurally credible or will decay into a
zombie commitment. Apply four tests: reversibility, exogenous trigger, cost
allocation, enforcement leverage.

Return ONLY valid JSON, no markdown fences, no commentary:
{"verdict":"<STRUCTURALLY_CREDIBLE|FRAGILE_CONSENSUS|ZOMBIE_RISK>","failed_tests":["<test name>"],"critique":"<why>","mechanism_patch":{"trigger":"<observable condition>","action":"<automatic consequence>","authority":"<who or what enforces it>"}}

Omit mechanism_patch only when the verdict is STRUCTURALLY_CREDIBLE.`

// LLMReviewer produces the conditionality review via the same
// OpenAI-compatible endpoint the LLM evaluators use.
type LLMReviewer struct {
	cfg LLMConfig
}

// NewLLMReviewer creates a reviewer against the given endpoint.
func NewLLMReviewer(cfg LLMConfig) *LLMReviewer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	return &LLMReviewer{cfg: cfg}
}

// Review implements cla.Reviewer.
func (r *LLMReviewer) Review(ctx context.Context, proposal model.Proposal, evals []model.Evaluation) (model.ConditionalityReview, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal: %s\n\n%s\n", proposal.Title, proposal.Body)
	for _, a := range proposal.Amendments {
		fmt.Fprintf(&b, "Amendment: %s\n", a)
	}
	b.WriteString("\nFinal evaluations:\n")
	for _, e := range evals {
		fmt.Fprintf(&b, "- %s: %s (%.2f) %s\n", e.EvaluatorID, e.Rating, e.Confidence, e.Reasoning)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model": r.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": reviewContract},
			{"role": "user", "content": b.String()},
		},
		"max_tokens":  r.cfg.MaxTokens,
		"temperature": 0,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return model.ConditionalityReview{}, fmt.Errorf("create request: %w", err)
	}
	if r.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: r.cfg.Timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return model.ConditionalityReview{}, fmt.Errorf("review request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return model.ConditionalityReview{}, fmt.Errorf("review: %w", neurorouter.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return model.ConditionalityReview{}, fmt.Errorf("review HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return model.ConditionalityReview{}, fmt.Errorf("empty review response")
	}

	return parseReview(result.Choices[0].Message.Content)
}

type rawReview struct {
	Verdict     string                `json:"verdict"`
	FailedTests []string              `json:"failed_tests"`
	Critique    string                `json:"critique"`
	Patch       *model.MechanismPatch `json:"mechanism_patch"`
}

func parseReview(raw string) (model.ConditionalityReview, error) {
	raw = cleanJSON(raw)

	var rr rawReview
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return model.ConditionalityReview{}, fmt.Errorf("cannot parse review: %s", truncate(raw, 200))
	}

	verdict, err := model.ParseVerdict(rr.Verdict)
	if err != nil {
		return model.ConditionalityReview{}, err
	}

	return model.ConditionalityReview{
		Verdict:     verdict,
		FailedTests: rr.FailedTests,
		Critique:    rr.Critique,
		Patch:       rr.Patch,
	}, nil
}

// StaticReviewer returns a fixed review. Used in tests and scenario replay.
type StaticReviewer struct {
	Result model.ConditionalityReview
	Err    error
}

// Review implements cla.Reviewer.
func (s *StaticReviewer) Review(_ context.Context, _ model.Proposal, _ []model.Evaluation) (model.ConditionalityReview, error) {
	if s.Err != nil {
		return model.ConditionalityReview{}, s.Err
	}
	return s.Result, nil
}
