package models

import "time"

// Layer names for the four validation layers, in pipeline order.
const (
	// LayerCodeQuality checks style, lint, and static analysis.
	LayerCodeQuality = "code-quality"
	// LayerFunctional checks behavior against acceptance criteria.
	LayerFunctional = "functional"
	// LayerIntegration checks the story against the rest of the system.
	LayerIntegration = "integration"
	// LayerUserExperience reviews the change from the user's perspective.
	LayerUserExperience = "user-experience"
)

// LayerOrder is the fixed execution order of the validation layers.
var LayerOrder = []string{LayerCodeQuality, LayerFunctional, LayerIntegration, LayerUserExperience}

// Finding is a single issue surfaced by a validation layer.
type Finding struct {
	// Description explains what the layer observed.
	Description string `json:"description"`
	// Component is the part of the story the finding concerns, if known.
	Component string `json:"component,omitempty"`
	// SeverityHint is the layer's own severity estimate. The bug
	// detector may escalate it during classification.
	SeverityHint Severity `json:"severity_hint"`
	// Evidence holds opaque references (log paths, artifact IDs) that
	// support the finding.
	Evidence []string `json:"evidence,omitempty"`
}

// LayerResult is the output of one validation layer for one job.
// It is immutable once produced.
type LayerResult struct {
	// Layer is the layer name (see the Layer constants).
	Layer string `json:"layer"`
	// Passed indicates whether the layer's checks succeeded.
	Passed bool `json:"passed"`
	// Findings lists the issues the layer surfaced.
	Findings []Finding `json:"findings,omitempty"`
	// CoveragePercent is the measured test coverage, if this layer
	// measures it. Negative means not measured.
	CoveragePercent float64 `json:"coverage_percent"`
	// PerfRegressionPercent is the measured performance regression, if
	// this layer measures it. Negative means not measured.
	PerfRegressionPercent float64 `json:"perf_regression_percent"`
	// SecurityScan records the security scan outcome if this layer ran
	// one: "passed", "failed", or empty when no scan ran.
	SecurityScan string `json:"security_scan,omitempty"`
	// ExecutionError records an executor fault, as opposed to a check
	// failure. The pipeline converts faults into failed results.
	ExecutionError string `json:"execution_error,omitempty"`
	// Duration is how long the layer took to run.
	Duration time.Duration `json:"duration"`
}

// Gate names reported by the quality gate evaluator.
const (
	// GateCoverage fails when coverage is below the configured minimum.
	GateCoverage = "coverage-below-threshold"
	// GatePerfRegression fails when the measured regression exceeds the
	// configured maximum.
	GatePerfRegression = "performance-regression-exceeded"
	// GateSecurityScan fails when a required security scan is missing
	// or failed.
	GateSecurityScan = "security-scan-missing-or-failed"
)

// GateViolation describes one violated quality gate.
type GateViolation struct {
	// Gate is the gate name (see the Gate constants).
	Gate string `json:"gate"`
	// Detail explains the measured value against the threshold.
	Detail string `json:"detail"`
}

// QualityGateResult is the verdict of the quality gate evaluator.
// It is derived from layer results and never persisted on its own.
type QualityGateResult struct {
	// Passed indicates whether every configured gate was satisfied.
	Passed bool `json:"passed"`
	// Violations lists every violated gate, not just the first.
	Violations []GateViolation `json:"violations,omitempty"`
}

// ValidationReport is the immutable record of one validation attempt.
// Exactly one report is produced per completed attempt.
type ValidationReport struct {
	// ID is the unique identifier for this report.
	ID string `json:"id"`
	// JobID is the job this report belongs to.
	JobID string `json:"job_id"`
	// StoryID is the story that was validated.
	StoryID string `json:"story_id"`
	// Attempt is the attempt number this report records (1-indexed).
	Attempt int `json:"attempt"`
	// Layers holds the layer results in execution order.
	Layers []LayerResult `json:"layers"`
	// Gate is the quality gate verdict for this attempt.
	Gate QualityGateResult `json:"gate"`
	// Passed is the final verdict: all layers ran and the gate passed.
	Passed bool `json:"passed"`
	// BugIDs lists bugs generated from this report, if any.
	BugIDs []string `json:"bug_ids,omitempty"`
	// StartedAt is when the pipeline began executing.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the report was assembled.
	FinishedAt time.Time `json:"finished_at"`
}

// LayerNamed returns the result for the named layer, or nil if absent.
func (r *ValidationReport) LayerNamed(name string) *LayerResult {
	for i := range r.Layers {
		if r.Layers[i].Layer == name {
			return &r.Layers[i]
		}
	}
	return nil
}
