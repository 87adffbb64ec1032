package models

import "time"

// Severity classifies how serious a bug is.
type Severity string

const (
	// SeverityCritical blocks release and schedules immediate re-validation.
	SeverityCritical Severity = "critical"
	// SeverityHigh is a serious defect that schedules re-validation.
	SeverityHigh Severity = "high"
	// SeverityMedium is a defect that should be fixed soon.
	SeverityMedium Severity = "medium"
	// SeverityLow is a minor defect.
	SeverityLow Severity = "low"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Rank returns a comparable rank: higher means more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AtLeast returns true if s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Escalate returns the severity one level up, capped at critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}

// Max returns the more severe of the two severities.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// BugStatus represents the lifecycle state of a bug record.
type BugStatus string

const (
	// BugOpen indicates the bug awaits remediation.
	BugOpen BugStatus = "open"
	// BugArchived indicates the bug was resolved. Bugs are archived,
	// never deleted.
	BugArchived BugStatus = "archived"
)

// Valid returns true if the status is a known value.
func (s BugStatus) Valid() bool {
	return s == BugOpen || s == BugArchived
}

// Bug is a classified defect produced by the bug detector.
type Bug struct {
	// ID is the unique identifier for this bug.
	ID string `json:"id"`
	// Signature is the deduplication key: at most one open bug exists
	// per signature.
	Signature string `json:"signature"`
	// StoryID is the story the bug was found in.
	StoryID string `json:"story_id"`
	// JobID is the validation job whose report produced the bug.
	JobID string `json:"job_id"`
	// ReportID is the validation report that justified creating this
	// bug. Every bug references exactly one report.
	ReportID string `json:"report_id"`
	// Severity is the classified severity.
	Severity Severity `json:"severity"`
	// Summary is a one-line description of the defect.
	Summary string `json:"summary"`
	// Rationale explains how the classifier arrived at the severity.
	Rationale string `json:"rationale"`
	// Evidence holds opaque reproduction references, accumulated as
	// duplicate findings attach to this bug.
	Evidence []string `json:"evidence,omitempty"`
	// Status is open or archived.
	Status BugStatus `json:"status"`
	// CreatedAt is when the bug was first detected.
	CreatedAt time.Time `json:"created_at"`
	// ResolvedAt is when the bug was archived, if it has been.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
