package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"

	"github.com/ppiankov/conclave/internal/model"
)

// LLMConfig holds parameters for an OpenAI-compatible chat completion
// endpoint (local or cloud).
type LLMConfig struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// LLM is an evaluator backed by an LLM persona. The persona system prompt
// carries the evaluator's perspective; this code only enforces the contract:
// strict JSON out, unknown ratings rejected at the boundary.
type LLM struct {
	id      string
	persona string
	cfg     LLMConfig
}

// NewLLM creates an LLM evaluator with the given identity and persona.
func NewLLM(id, persona string, cfg LLMConfig) *LLM {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &LLM{id: id, persona: persona, cfg: cfg}
}

// ID returns the evaluator identity used for tier and waiver matching.
func (l *LLM) ID() string { return l.id }

const evaluationContract = `Evaluate the proposal from your assigned perspective.

Return ONLY valid JSON, no markdown fences, no commentary:
{"rating":"<BLOCK|WARN|ACCEPT|ENDORSE>","confidence":<0..1>,"reasoning":"<why>","attack_vector":"<how this fails, optional>","mitigation_plan":"<what would fix it, optional>","evidence":["<supporting point>"]}

Rating semantics:
- BLOCK: the proposal must not proceed as written
- WARN: serious reservations, not a veto
- ACCEPT: acceptable with noted caveats
- ENDORSE: actively support proceeding`

// Evaluate sends the proposal to the configured endpoint and parses a
// strict-JSON evaluation. HTTP 429 is wrapped with the rate-limit sentinel
// so callers can defer retries with errors.Is.
func (l *LLM) Evaluate(ctx context.Context, req Request) (model.Evaluation, error) {
	user := renderRequest(req)

	body, _ := json.Marshal(map[string]interface{}{
		"model": l.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": l.persona + "\n\n" + evaluationContract},
			{"role": "user", "content": user},
		},
		"max_tokens":  l.cfg.MaxTokens,
		"temperature": 0,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("create request: %w", err)
	}
	if l.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: l.cfg.Timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return model.Evaluation{}, fmt.Errorf("evaluate %s: %w", l.id, neurorouter.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Evaluation{}, fmt.Errorf("evaluate HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return model.Evaluation{}, fmt.Errorf("empty evaluate response")
	}

	return parseEvaluation(result.Choices[0].Message.Content)
}

func renderRequest(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d.\n\nProposal: %s\n\n%s\n", req.Round, req.Proposal.Title, req.Proposal.Body)
	for _, a := range req.Proposal.Amendments {
		fmt.Fprintf(&b, "Amendment: %s\n", a)
	}
	if req.Context != (model.Context{}) {
		fmt.Fprintf(&b, "\nContext: market=%s industry=%s company_size=%s\n",
			req.Context.Market, req.Context.Industry, req.Context.CompanySize)
	}
	for _, h := range req.History {
		fmt.Fprintf(&b, "Previous round %d: converged=%v (%s)\n", h.RoundCount, h.Converged, h.Reason)
	}
	return b.String()
}

// rawEvaluation mirrors the JSON contract; rating is validated strictly.
type rawEvaluation struct {
	Rating         string   `json:"rating"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	AttackVector   string   `json:"attack_vector"`
	MitigationPlan string   `json:"mitigation_plan"`
	Evidence       []string `json:"evidence"`
}

func parseEvaluation(raw string) (model.Evaluation, error) {
	raw = cleanJSON(raw)

	var re rawEvaluation
	if err := json.Unmarshal([]byte(raw), &re); err != nil {
		return model.Evaluation{}, fmt.Errorf("cannot parse evaluation: %s", truncate(raw, 200))
	}

	rating, err := model.ParseRating(re.Rating)
	if err != nil {
		return model.Evaluation{}, err
	}

	return model.Evaluation{
		Rating:         rating,
		Confidence:     re.Confidence,
		Reasoning:      re.Reasoning,
		AttackVector:   re.AttackVector,
		MitigationPlan: re.MitigationPlan,
		Evidence:       re.Evidence,
	}, nil
}

// cleanJSON strips markdown fences and leading/trailing whitespace.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
