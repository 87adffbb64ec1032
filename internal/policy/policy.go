// Package policy decides which autonomous actions the engine may take
// without a human in the loop.
package policy

// Action identifies an autonomous action subject to permission checks.
type Action string

const (
	// ActionScheduleBacklog schedules a prioritized re-validation job
	// for a newly detected critical or high bug.
	ActionScheduleBacklog Action = "schedule-backlog"
	// ActionEscalateTerminalFailure escalates a terminally failed job
	// into the backlog for human triage.
	ActionEscalateTerminalFailure Action = "escalate-terminal-failure"
)

// Valid returns true if the action is a recognized kind.
func (a Action) Valid() bool {
	switch a {
	case ActionScheduleBacklog, ActionEscalateTerminalFailure:
		return true
	}
	return false
}

// Engine is consulted before any autonomous action is executed. When
// an action is disallowed the caller queues it for manual approval
// instead of executing it.
type Engine interface {
	IsAutonomousActionAllowed(action Action) bool
}

// RuleEngine is a config-driven Engine with an explicit allow set.
// Unknown actions are always denied.
type RuleEngine struct {
	allowed map[Action]bool
}

// NewRuleEngine creates an engine allowing exactly the given actions.
func NewRuleEngine(allowed ...Action) *RuleEngine {
	m := make(map[Action]bool, len(allowed))
	for _, a := range allowed {
		m[a] = true
	}
	return &RuleEngine{allowed: m}
}

// IsAutonomousActionAllowed reports whether the action may run without
// manual approval.
func (e *RuleEngine) IsAutonomousActionAllowed(action Action) bool {
	return e.allowed[action]
}

// AllowAll is an Engine that permits every recognized action. Used in
// fully autonomous deployments and tests.
type AllowAll struct{}

// IsAutonomousActionAllowed always returns true for recognized actions.
func (AllowAll) IsAutonomousActionAllowed(action Action) bool {
	return action.Valid()
}

var (
	_ Engine = (*RuleEngine)(nil)
	_ Engine = AllowAll{}
)
