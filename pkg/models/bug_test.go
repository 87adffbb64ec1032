package models

import "testing"

func TestSeverityRankOrdering(t *testing.T) {
	if !(SeverityCritical.Rank() > SeverityHigh.Rank() &&
		SeverityHigh.Rank() > SeverityMedium.Rank() &&
		SeverityMedium.Rank() > SeverityLow.Rank()) {
		t.Error("severity ranks are not strictly ordered")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity should rank 0")
	}
}

func TestSeverityEscalate(t *testing.T) {
	cases := map[Severity]Severity{
		SeverityLow:      SeverityMedium,
		SeverityMedium:   SeverityHigh,
		SeverityHigh:     SeverityCritical,
		SeverityCritical: SeverityCritical,
	}
	for from, want := range cases {
		if got := from.Escalate(); got != want {
			t.Errorf("Escalate(%s) = %s, want %s", from, got, want)
		}
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityHigh.AtLeast(SeverityMedium) {
		t.Error("high should be at least medium")
	}
	if !SeverityHigh.AtLeast(SeverityHigh) {
		t.Error("high should be at least high")
	}
	if SeverityLow.AtLeast(SeverityCritical) {
		t.Error("low should not be at least critical")
	}
}

func TestSeverityMax(t *testing.T) {
	if got := SeverityLow.Max(SeverityHigh); got != SeverityHigh {
		t.Errorf("Max(low, high) = %s, want high", got)
	}
	if got := SeverityCritical.Max(SeverityMedium); got != SeverityCritical {
		t.Errorf("Max(critical, medium) = %s, want critical", got)
	}
}

func TestBugStatusValid(t *testing.T) {
	if !BugOpen.Valid() || !BugArchived.Valid() {
		t.Error("known bug statuses reported invalid")
	}
	if BugStatus("closed").Valid() {
		t.Error("unknown bug status reported valid")
	}
}
