package bugs

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/vigil/internal/policy"
	"github.com/ShayCichocki/vigil/internal/state"
	"github.com/ShayCichocki/vigil/pkg/models"
)

func setupDetectorStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func failedReport(storyID string, findings ...models.Finding) *models.ValidationReport {
	now := time.Now().UTC()
	return &models.ValidationReport{
		ID:      uuid.New().String(),
		JobID:   uuid.New().String(),
		StoryID: storyID,
		Attempt: 1,
		Layers: []models.LayerResult{
			{Layer: models.LayerCodeQuality, Passed: true, CoveragePercent: -1, PerfRegressionPercent: -1},
			{Layer: models.LayerFunctional, Passed: false, Findings: findings, CoveragePercent: -1, PerfRegressionPercent: -1},
		},
		Gate:       models.QualityGateResult{Passed: false, Violations: []models.GateViolation{{Gate: models.GateCoverage, Detail: "coverage unmeasured"}}},
		Passed:     false,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}

func TestProcessGateFailedCreatesBug(t *testing.T) {
	db := setupDetectorStore(t)
	d := NewDetector(db, policy.AllowAll{})

	report := failedReport("story-1", models.Finding{
		Description:  "checkout flow returns 500",
		Component:    "checkout",
		SeverityHint: models.SeverityMedium,
		Evidence:     []string{"logs/checkout.log"},
	})

	created, err := d.Process(report)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d bugs, want 1", len(created))
	}

	bug := created[0]
	if bug.StoryID != "story-1" || bug.JobID != report.JobID || bug.ReportID != report.ID {
		t.Errorf("bug references = %s/%s/%s, want report's", bug.StoryID, bug.JobID, bug.ReportID)
	}
	if bug.Status != models.BugOpen {
		t.Errorf("Status = %q, want open", bug.Status)
	}
	if len(report.BugIDs) != 1 || report.BugIDs[0] != bug.ID {
		t.Errorf("report.BugIDs = %v, want [%s]", report.BugIDs, bug.ID)
	}

	stored, err := db.GetBug(bug.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetBug = %v, %v", stored, err)
	}
	if len(stored.Evidence) != 2 {
		t.Fatalf("Evidence = %v, want finding evidence plus report reference", stored.Evidence)
	}
	if !strings.Contains(stored.Evidence[1], "report:"+report.ID) {
		t.Errorf("Evidence[1] = %q, want report reference", stored.Evidence[1])
	}
}

func TestProcessDeduplicatesAcrossReports(t *testing.T) {
	db := setupDetectorStore(t)
	d := NewDetector(db, policy.AllowAll{})

	finding := models.Finding{
		Description:  "inventory sync drops rows",
		Component:    "inventory",
		SeverityHint: models.SeverityMedium,
	}

	first, err := d.Process(failedReport("story-1", finding))
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first Process created %d bugs, want 1", len(first))
	}

	second, err := d.Process(failedReport("story-1", finding))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second Process created %d bugs, want 0", len(second))
	}

	open := models.BugOpen
	bugList, err := db.ListBugs(&open)
	if err != nil {
		t.Fatalf("ListBugs failed: %v", err)
	}
	if len(bugList) != 1 {
		t.Fatalf("open bugs = %d, want 1", len(bugList))
	}
	if len(bugList[0].Evidence) != 2 {
		t.Errorf("Evidence entries = %d, want 2 (one per report)", len(bugList[0].Evidence))
	}
}

func TestProcessPassedReportThreshold(t *testing.T) {
	db := setupDetectorStore(t)
	d := NewDetector(db, policy.AllowAll{})

	now := time.Now().UTC()
	report := &models.ValidationReport{
		ID:      uuid.New().String(),
		JobID:   uuid.New().String(),
		StoryID: "story-1",
		Attempt: 1,
		Layers: []models.LayerResult{
			{Layer: models.LayerUserExperience, Passed: false, CoveragePercent: -1, PerfRegressionPercent: -1, Findings: []models.Finding{
				{Description: "confusing flag name", Component: "cli", SeverityHint: models.SeverityLow},
				{Description: "credentials echoed to terminal", Component: "cli", SeverityHint: models.SeverityCritical},
			}},
		},
		Gate:       models.QualityGateResult{Passed: true},
		Passed:     true,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}

	created, err := d.Process(report)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d bugs, want 1 (only above threshold)", len(created))
	}
	if created[0].Severity != models.SeverityCritical {
		t.Errorf("Severity = %q, want critical", created[0].Severity)
	}
}

func TestProcessRegressionEscalates(t *testing.T) {
	db := setupDetectorStore(t)
	d := NewDetector(db, policy.AllowAll{})

	now := time.Now().UTC()
	prev := &models.ValidationReport{
		ID:      uuid.New().String(),
		JobID:   uuid.New().String(),
		StoryID: "story-1",
		Attempt: 1,
		Layers: []models.LayerResult{
			{Layer: models.LayerFunctional, Passed: true, CoveragePercent: -1, PerfRegressionPercent: -1},
		},
		Gate:       models.QualityGateResult{Passed: true},
		Passed:     true,
		StartedAt:  now.Add(-time.Hour),
		FinishedAt: now.Add(-time.Hour + time.Minute),
	}
	if err := db.SaveReport(prev); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	report := failedReport("story-1", models.Finding{
		Description:  "order totals miscalculated",
		Component:    "billing",
		SeverityHint: models.SeverityMedium,
	})

	created, err := d.Process(report)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d bugs, want 1", len(created))
	}
	if created[0].Severity != models.SeverityHigh {
		t.Errorf("Severity = %q, want high (escalated one level)", created[0].Severity)
	}
	if !strings.Contains(created[0].Rationale, "regression") {
		t.Errorf("Rationale = %q, want regression mention", created[0].Rationale)
	}
}

func TestProcessFirstFailureNotEscalated(t *testing.T) {
	db := setupDetectorStore(t)
	d := NewDetector(db, policy.AllowAll{})

	report := failedReport("story-1", models.Finding{
		Description:  "order totals miscalculated",
		Component:    "billing",
		SeverityHint: models.SeverityMedium,
	})

	created, err := d.Process(report)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d bugs, want 1", len(created))
	}
	if created[0].Severity != models.SeverityMedium {
		t.Errorf("Severity = %q, want medium (no prior report)", created[0].Severity)
	}
}

func TestProcessBacklogRespectsPolicy(t *testing.T) {
	db := setupDetectorStore(t)

	finding := models.Finding{
		Description:  "data loss on concurrent writes",
		Component:    "storage",
		SeverityHint: models.SeverityCritical,
	}

	allowed := NewDetector(db, policy.AllowAll{})
	if _, err := allowed.Process(failedReport("story-1", finding)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	denied := NewDetector(db, policy.NewRuleEngine())
	if _, err := denied.Process(failedReport("story-2", finding)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	ready := models.BacklogReady
	entries, err := db.ListBacklog(&ready)
	if err != nil {
		t.Fatalf("ListBacklog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].StoryID != "story-1" {
		t.Fatalf("ready entries = %+v, want one for story-1", entries)
	}

	needsApproval := models.BacklogNeedsApproval
	entries, err = db.ListBacklog(&needsApproval)
	if err != nil {
		t.Fatalf("ListBacklog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].StoryID != "story-2" {
		t.Fatalf("needs_approval entries = %+v, want one for story-2", entries)
	}
}

func TestProcessLowSeverityNoBacklog(t *testing.T) {
	db := setupDetectorStore(t)
	d := NewDetector(db, policy.AllowAll{})

	report := failedReport("story-1", models.Finding{
		Description:  "log line typo",
		Component:    "logging",
		SeverityHint: models.SeverityLow,
	})
	if _, err := d.Process(report); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	entries, err := db.ListBacklog(nil)
	if err != nil {
		t.Fatalf("ListBacklog failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("backlog entries = %d, want 0 for low severity", len(entries))
	}
}
