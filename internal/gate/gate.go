// Package gate evaluates quality gates over aggregated layer results.
// Evaluation is a pure function: the same layer results and config
// always produce the same verdict.
package gate

import (
	"fmt"

	"github.com/ShayCichocki/vigil/pkg/models"
)

// Security scan outcomes recorded on a layer result.
const (
	// ScanPassed indicates the layer ran a security scan and it passed.
	ScanPassed = "passed"
	// ScanFailed indicates the layer ran a security scan and it failed.
	ScanFailed = "failed"
)

// Config holds the recognized quality gate thresholds.
type Config struct {
	// MinCoveragePercent fails the coverage gate when measured coverage
	// is below this value. Zero disables the gate.
	MinCoveragePercent float64
	// MaxPerfRegressionPercent fails the performance gate when the
	// measured regression exceeds this value. Zero disables the gate.
	MaxPerfRegressionPercent float64
	// SecurityScanRequired fails the security gate when no layer ran a
	// security scan or the scan failed.
	SecurityScanRequired bool
}

// Evaluate applies the configured gates to the given layer results.
// Every violated gate is reported, not just the first.
func Evaluate(layers []models.LayerResult, cfg Config) models.QualityGateResult {
	var violations []models.GateViolation

	if cfg.MinCoveragePercent > 0 {
		if v := checkCoverage(layers, cfg.MinCoveragePercent); v != nil {
			violations = append(violations, *v)
		}
	}

	if cfg.MaxPerfRegressionPercent > 0 {
		if v := checkPerfRegression(layers, cfg.MaxPerfRegressionPercent); v != nil {
			violations = append(violations, *v)
		}
	}

	if cfg.SecurityScanRequired {
		if v := checkSecurityScan(layers); v != nil {
			violations = append(violations, *v)
		}
	}

	return models.QualityGateResult{
		Passed:     len(violations) == 0,
		Violations: violations,
	}
}

// checkCoverage validates the highest measured coverage against the
// floor. A floor with no measurement at all is a violation: coverage
// that was never measured cannot satisfy a minimum.
func checkCoverage(layers []models.LayerResult, min float64) *models.GateViolation {
	best := -1.0
	for _, l := range layers {
		if l.CoveragePercent >= 0 && l.CoveragePercent > best {
			best = l.CoveragePercent
		}
	}

	if best < 0 {
		return &models.GateViolation{
			Gate:   models.GateCoverage,
			Detail: fmt.Sprintf("coverage not measured, minimum is %.1f%%", min),
		}
	}
	if best < min {
		return &models.GateViolation{
			Gate:   models.GateCoverage,
			Detail: fmt.Sprintf("coverage %.1f%% is below minimum %.1f%%", best, min),
		}
	}
	return nil
}

// checkPerfRegression validates the worst measured regression against
// the ceiling. An unmeasured regression cannot exceed a ceiling, so
// absence of measurement passes.
func checkPerfRegression(layers []models.LayerResult, max float64) *models.GateViolation {
	worst := -1.0
	for _, l := range layers {
		if l.PerfRegressionPercent >= 0 && l.PerfRegressionPercent > worst {
			worst = l.PerfRegressionPercent
		}
	}

	if worst > max {
		return &models.GateViolation{
			Gate:   models.GatePerfRegression,
			Detail: fmt.Sprintf("performance regression %.1f%% exceeds maximum %.1f%%", worst, max),
		}
	}
	return nil
}

// checkSecurityScan requires at least one layer to have run a passing
// security scan.
func checkSecurityScan(layers []models.LayerResult) *models.GateViolation {
	ran := false
	for _, l := range layers {
		switch l.SecurityScan {
		case ScanPassed:
			return nil
		case ScanFailed:
			ran = true
		}
	}

	detail := "no layer ran a security scan"
	if ran {
		detail = "security scan failed"
	}
	return &models.GateViolation{
		Gate:   models.GateSecurityScan,
		Detail: detail,
	}
}
