package desire

// Status is the lifecycle state of a desire.
type Status string

const (
	StatusNascent          Status = "nascent"
	StatusPending          Status = "pending"
	StatusEvaluating       Status = "evaluating"
	StatusPlanning         Status = "planning"
	StatusReviewing        Status = "reviewing"
	StatusApproved         Status = "approved"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusAwaitingReview   Status = "awaiting_review"
	StatusCompleted        Status = "completed"
	StatusRejected         Status = "rejected"
	StatusAbandoned        Status = "abandoned"
	StatusFailed           Status = "failed"
)

// AllStatuses lists every status, used for store bucket setup and validation.
var AllStatuses = []Status{
	StatusNascent, StatusPending, StatusEvaluating, StatusPlanning,
	StatusReviewing, StatusApproved, StatusAwaitingApproval, StatusExecuting,
	StatusAwaitingReview, StatusCompleted, StatusRejected, StatusAbandoned,
	StatusFailed,
}

// terminalStatuses are never left once entered. Desires in these buckets are
// only removed by retention pruning.
var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusRejected:  true,
	StatusAbandoned: true,
	StatusFailed:    true,
}

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, k := range AllStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// preExecution covers every state before execution begins. Explicit user
// rejection and decay abandonment are legal from any of these.
var preExecution = map[Status]bool{
	StatusNascent:          true,
	StatusPending:          true,
	StatusEvaluating:       true,
	StatusPlanning:         true,
	StatusReviewing:        true,
	StatusAwaitingApproval: true,
	StatusApproved:         true,
}

// transitions is the explicit allow-list of legal status edges. Anything not
// listed here is rejected with an InvalidTransitionError, no exceptions.
var transitions = map[Status][]Status{
	StatusNascent:    {StatusPending},
	StatusPending:    {StatusEvaluating},
	StatusEvaluating: {
		StatusPlanning,
		StatusPending, // strength slipped back under the threshold
	},
	StatusPlanning:   {StatusReviewing, StatusPending},
	StatusReviewing:  {StatusApproved, StatusAwaitingApproval},
	StatusAwaitingApproval: {
		StatusApproved,
		StatusPlanning, // revise with critique
		StatusPending,  // revise before any plan existed
	},
	StatusApproved: {
		StatusExecuting,
		StatusPlanning, // revise before execution starts
	},
	StatusExecuting: {
		StatusAwaitingReview,
		// Manual reset targets. The in-flight execution is marked aborted.
		StatusPending,
		StatusPlanning,
		StatusApproved,
		StatusFailed,
	},
	StatusAwaitingReview: {
		StatusCompleted,
		StatusPlanning, // retry / continue
		StatusAwaitingApproval,
		StatusAbandoned,
	},
}

// CanTransition reports whether from -> to is on the allow-list.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusRejected {
		return preExecution[from]
	}
	if to == StatusAbandoned {
		return preExecution[from] || from == StatusAwaitingReview
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ResetTargets lists where a stuck executing desire may be force-moved.
var ResetTargets = []Status{StatusPending, StatusPlanning, StatusApproved}

// IsResetTarget reports whether s is a valid target for a manual reset.
func IsResetTarget(s Status) bool {
	for _, t := range ResetTargets {
		if s == t {
			return true
		}
	}
	return false
}
