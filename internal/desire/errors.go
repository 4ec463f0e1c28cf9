package desire

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the engine. Callers branch on these with
// errors.Is; the wrapped messages carry the detail.
var (
	// ErrDesireNotFound indicates the id does not exist in any status bucket.
	ErrDesireNotFound = errors.New("desire not found")

	// ErrDesireBusy indicates the per-desire lock could not be acquired
	// within the bounded wait. The caller should retry.
	ErrDesireBusy = errors.New("desire busy")

	// ErrEmptyPlan indicates the planner produced zero steps even after
	// bounded re-requests. The desire stays in planning.
	ErrEmptyPlan = errors.New("planner returned an empty plan")

	// ErrReviewFailure indicates the review LLM call or parse failed. The
	// verdict degrades to reject, never to approve.
	ErrReviewFailure = errors.New("review failed")

	// ErrVerificationInconclusive indicates evidence neither confirms nor
	// denies the outcome. Outcome verdicts must bias toward retry/escalate.
	ErrVerificationInconclusive = errors.New("verification inconclusive")

	// ErrStaleGeneration indicates a backend result arrived after the desire
	// was reset. The result is discarded, not applied.
	ErrStaleGeneration = errors.New("stale generation, result discarded")
)

// InvalidTransitionError reports an attempted status change that is not on
// the allow-list. Always recoverable; state is left unchanged.
type InvalidTransitionError struct {
	DesireID string
	From     Status
	To       Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for desire %s: %s -> %s", e.DesireID, e.From, e.To)
}

// PlanParseError reports malformed planner LLM output. Recoverable; the
// caller may retry or escalate.
type PlanParseError struct {
	Raw string
	Err error
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("plan parse failed: %v", e.Err)
}

func (e *PlanParseError) Unwrap() error { return e.Err }

// SkillValidationError reports bad inputs or a disallowed path/command.
// Execution aborts at the offending step and is not retried automatically.
type SkillValidationError struct {
	Skill  string
	Field  string
	Reason string
}

func (e *SkillValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("skill %s: input %q: %s", e.Skill, e.Field, e.Reason)
	}
	return fmt.Sprintf("skill %s: %s", e.Skill, e.Reason)
}

// TimeoutError reports a blocking call exceeding its deadline. Distinguishable
// from semantic failures so callers can decide to retry.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed.Round(time.Millisecond))
}

// IsTimeout reports whether err carries a TimeoutError anywhere in its chain.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
