package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"volition/internal/desire"
	"volition/internal/executor"
	"volition/internal/llm"
	"volition/internal/logging"
)

// Verification strategies, from strongest evidence to weakest.
const (
	StrategyFileExistence = "file-existence"
	StrategyTaskList      = "task-list"
	StrategyInvestigate   = "investigate"
)

const investigateSystemPrompt = `You are the outcome verifier of an autonomous goal pursuit engine. The
executor below claims to have carried out a plan. Executors overstate their
success; your job is to check the claims against the evidence, not to take
them at face value.

Respond with a single JSON object:
{
  "verified": true or false,
  "evidence": ["specific observations supporting the judgment"],
  "inconclusive": true when the evidence neither confirms nor denies,
  "notes": "short explanation"
}

When you cannot tell, say inconclusive rather than guessing either way.`

// Verifier independently checks whether an execution's claimed outcome
// actually happened. Skill checks run through a read-only executor; the
// investigate strategy uses one model turn over the gathered evidence.
type Verifier struct {
	skills   executor.Executor
	client   llm.Client
	timeout  time.Duration
	trust    desire.TrustLevel
	hasTasks bool
	log      *logging.Logger
}

// VerifierOptions configure evidence gathering.
type VerifierOptions struct {
	// Timeout bounds the whole verification pass.
	Timeout time.Duration

	// Trust is the tier used for read-only skill invocations.
	Trust desire.TrustLevel

	// TaskListAvailable enables the task snapshot evidence source.
	TaskListAvailable bool
}

// NewVerifier builds a verifier. skills may be nil when no registry-backed
// evidence is possible; client may be nil to disable the investigate
// strategy. With neither, every verification is inconclusive.
func NewVerifier(skills executor.Executor, client llm.Client, opts VerifierOptions) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.Trust == "" {
		opts.Trust = desire.TrustSuggest
	}
	return &Verifier{
		skills:   skills,
		client:   client,
		timeout:  opts.Timeout,
		trust:    opts.Trust,
		hasTasks: opts.TaskListAvailable,
		log:      logging.Get(logging.CategoryVerify),
	}
}

// Verify checks the desire's latest execution against its plan. The
// execution's own success flag is never used as evidence.
func (v *Verifier) Verify(ctx context.Context, d *desire.Desire) *desire.Verification {
	cctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result := &desire.Verification{CheckedAt: time.Now().UTC()}
	if d.Plan == nil || d.Execution == nil {
		result.Strategy = StrategyInvestigate
		result.Inconclusive = true
		result.Errors = append(result.Errors, "nothing to verify: missing plan or execution record")
		return result
	}

	if paths := collectPaths(d.Plan); len(paths) > 0 && v.skills != nil {
		v.verifyFiles(cctx, result, paths)
		v.log.Info("Verify: %s strategy=%s verified=%t", d.ID, result.Strategy, result.Verified)
		return result
	}

	v.investigate(cctx, result, d)
	v.log.Info("Verify: %s strategy=%s verified=%t inconclusive=%t",
		d.ID, result.Strategy, result.Verified, result.Inconclusive)
	return result
}

// verifyFiles stats every path the plan touched. All must exist for the
// outcome to count as verified.
func (v *Verifier) verifyFiles(ctx context.Context, result *desire.Verification, paths []string) {
	result.Strategy = StrategyFileExistence

	allExist := true
	for _, p := range paths {
		res, err := v.skills.Invoke(ctx, executor.Request{
			Action: "verify file exists",
			Skill:  "file_stat",
			Inputs: map[string]any{"path": p},
		}, executor.Options{Trust: v.trust, ReadOnly: true})
		if err != nil || !res.Success {
			allExist = false
			detail := "stat failed"
			if err != nil {
				detail = err.Error()
			} else if res.Error != "" {
				detail = res.Error
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", p, detail))
			continue
		}

		var stat struct {
			Exists bool  `json:"exists"`
			Size   int64 `json:"size"`
		}
		if jsonErr := json.Unmarshal([]byte(res.Result), &stat); jsonErr != nil || !stat.Exists {
			allExist = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: does not exist", p))
			continue
		}
		result.Evidence = append(result.Evidence, fmt.Sprintf("%s exists (%d bytes)", p, stat.Size))
	}
	result.Verified = allExist && len(result.Evidence) > 0
}

// investigate gathers what evidence it can and asks the model to judge the
// claims. No client means no judgment: the result is inconclusive.
func (v *Verifier) investigate(ctx context.Context, result *desire.Verification, d *desire.Desire) {
	result.Strategy = StrategyInvestigate

	var extra []string
	if v.hasTasks && v.skills != nil {
		res, err := v.skills.Invoke(ctx, executor.Request{
			Action: "snapshot current tasks",
			Skill:  "task_list",
		}, executor.Options{Trust: v.trust, ReadOnly: true})
		if err == nil && res.Success {
			result.Strategy = StrategyTaskList
			extra = append(extra, "Current task snapshot: "+res.Result)
		}
	}

	if v.client == nil {
		result.Inconclusive = true
		result.Errors = append(result.Errors, "no verification backend available")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nClaimed step results:\n", d.Plan.Goal)
	for _, sr := range d.Execution.StepResults {
		fmt.Fprintf(&b, "- step %d success=%t: %s", sr.Order, sr.Success, sr.Result)
		if sr.Error != "" {
			fmt.Fprintf(&b, " (error: %s)", sr.Error)
		}
		b.WriteByte('\n')
	}
	for _, e := range extra {
		b.WriteString("\n" + e + "\n")
	}

	comp, err := v.client.Complete(ctx, investigateSystemPrompt, b.String(), llm.Options{JSONMode: true})
	if err != nil {
		result.Inconclusive = true
		result.Errors = append(result.Errors, err.Error())
		return
	}

	var resp struct {
		Verified     bool     `json:"verified"`
		Evidence     []string `json:"evidence"`
		Inconclusive bool     `json:"inconclusive"`
		Notes        string   `json:"notes"`
	}
	if err := llm.DecodeJSON(comp.Content, &resp); err != nil {
		result.Inconclusive = true
		result.Errors = append(result.Errors, "unparseable verifier response")
		return
	}

	result.Evidence = resp.Evidence
	result.Inconclusive = resp.Inconclusive
	// A verified claim with no evidence is a contradiction; downgrade it.
	result.Verified = resp.Verified && !resp.Inconclusive && len(resp.Evidence) > 0
	if resp.Notes != "" {
		result.Evidence = append(result.Evidence, resp.Notes)
	}
}

// collectPaths gathers every path-shaped input from the plan's steps.
func collectPaths(plan *desire.Plan) []string {
	var paths []string
	seen := map[string]bool{}
	for _, step := range plan.Steps {
		for name, val := range step.Inputs {
			if name != "path" {
				continue
			}
			if s, ok := val.(string); ok && s != "" && !seen[s] {
				seen[s] = true
				paths = append(paths, s)
			}
		}
	}
	return paths
}
