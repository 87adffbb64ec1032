package bugs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/vigil/internal/policy"
	"github.com/ShayCichocki/vigil/internal/state"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// Store is the persistence surface the detector needs: bug history for
// deduplication, the report archive for regression detection, and the
// backlog partition for re-validation requests.
type Store interface {
	state.BugStore
	state.ReportStore
	state.BacklogStore
}

// Detector classifies findings from validation reports into bug
// records, deduplicating against the open bug history.
type Detector struct {
	store       Store
	policy      policy.Engine
	rules       *RuleSet
	minSeverity models.Severity
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithRules overrides the severity classification rule set.
func WithRules(rs *RuleSet) DetectorOption {
	return func(d *Detector) {
		d.rules = rs
	}
}

// WithMinSeverity sets the severity threshold above which findings
// from a gate-passing report still produce bugs.
func WithMinSeverity(s models.Severity) DetectorOption {
	return func(d *Detector) {
		d.minSeverity = s
	}
}

// NewDetector creates a bug detector. By default it uses the built-in
// rule set and only records findings from gate-passing reports when
// they classify at high or above.
func NewDetector(store Store, engine policy.Engine, opts ...DetectorOption) *Detector {
	d := &Detector{
		store:       store,
		policy:      engine,
		rules:       DefaultRuleSet(),
		minSeverity: models.SeverityHigh,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process examines a finished report and emits bug records. When the
// gate failed, every finding is considered; when the gate passed, only
// findings classifying at or above the configured threshold are.
// Findings whose signature matches an existing open bug attach
// evidence to it instead of duplicating. New critical and high bugs
// request prioritized re-validation through the backlog; when policy
// denies autonomous scheduling the request is parked for manual
// approval.
//
// Process must run before the report is archived: regression detection
// compares against the story's last archived report. Created bug IDs
// are appended to report.BugIDs.
func (d *Detector) Process(report *models.ValidationReport) ([]models.Bug, error) {
	prev, err := d.store.LastReportForStory(report.StoryID)
	if err != nil {
		return nil, fmt.Errorf("look up previous report: %w", err)
	}

	var created []models.Bug
	for _, layer := range report.Layers {
		for _, finding := range layer.Findings {
			severity := d.rules.Classify(layer.Layer, finding)
			rationale := fmt.Sprintf("classified %s by rule set", severity)

			if layer.Layer == models.LayerFunctional && isRegression(prev, finding.Component) {
				severity = severity.Escalate()
				rationale = fmt.Sprintf("escalated to %s: regression of previously passing functional check", severity)
			}

			if report.Passed && !severity.AtLeast(d.minSeverity) {
				continue
			}

			bug, fresh, err := d.recordFinding(report, layer.Layer, finding, severity, rationale)
			if err != nil {
				return created, err
			}
			if !fresh {
				continue
			}
			created = append(created, *bug)
			report.BugIDs = append(report.BugIDs, bug.ID)

			if bug.Severity.AtLeast(models.SeverityHigh) {
				if err := d.requestRevalidation(bug); err != nil {
					return created, err
				}
			}
		}
	}
	return created, nil
}

// recordFinding creates a bug for the finding or, when an open bug
// with the same signature exists, attaches evidence to it. Returns the
// bug and whether it was freshly created.
func (d *Detector) recordFinding(report *models.ValidationReport, layer string, finding models.Finding, severity models.Severity, rationale string) (*models.Bug, bool, error) {
	signature := Signature(report.StoryID, finding.Component, finding.Description)
	evidence := append([]string{}, finding.Evidence...)
	evidence = append(evidence, fmt.Sprintf("report:%s layer:%s attempt:%d", report.ID, layer, report.Attempt))

	existing, err := d.store.OpenBugBySignature(signature)
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		if err := d.store.AppendBugEvidence(existing.ID, evidence); err != nil {
			return nil, false, fmt.Errorf("attach evidence to bug %s: %w", existing.ID, err)
		}
		return existing, false, nil
	}

	bug := &models.Bug{
		ID:        uuid.New().String(),
		Signature: signature,
		StoryID:   report.StoryID,
		JobID:     report.JobID,
		ReportID:  report.ID,
		Severity:  severity,
		Summary:   finding.Description,
		Rationale: rationale,
		Evidence:  evidence,
		Status:    models.BugOpen,
		CreatedAt: time.Now().UTC(),
	}
	err = d.store.CreateBug(bug)
	if errors.Is(err, state.ErrConflict) {
		// Lost a creation race for this signature. Attach to the winner.
		winner, lookupErr := d.store.OpenBugBySignature(signature)
		if lookupErr != nil || winner == nil {
			return nil, false, fmt.Errorf("dedup race lookup: %w", lookupErr)
		}
		if err := d.store.AppendBugEvidence(winner.ID, evidence); err != nil {
			return nil, false, fmt.Errorf("attach evidence to bug %s: %w", winner.ID, err)
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create bug: %w", err)
	}
	return bug, true, nil
}

// requestRevalidation adds a backlog entry for the bug. Entries start
// ready when policy allows autonomous scheduling, otherwise they wait
// for manual approval.
func (d *Detector) requestRevalidation(bug *models.Bug) error {
	entryState := models.BacklogReady
	if !d.policy.IsAutonomousActionAllowed(policy.ActionScheduleBacklog) {
		entryState = models.BacklogNeedsApproval
	}

	entry := &models.BacklogEntry{
		ID:        uuid.New().String(),
		BugID:     bug.ID,
		JobID:     bug.JobID,
		StoryID:   bug.StoryID,
		Severity:  bug.Severity,
		State:     entryState,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.AddBacklogEntry(entry); err != nil {
		return fmt.Errorf("request revalidation for bug %s: %w", bug.ID, err)
	}
	return nil
}

// isRegression reports whether the component's functional check passed
// in the story's previous report. A component absent from the previous
// failing layer also counts: the failure is new.
func isRegression(prev *models.ValidationReport, component string) bool {
	if prev == nil {
		return false
	}
	prevLayer := prev.LayerNamed(models.LayerFunctional)
	if prevLayer == nil {
		return false
	}
	if prevLayer.Passed {
		return true
	}
	for _, f := range prevLayer.Findings {
		if f.Component == component {
			return false
		}
	}
	return true
}
