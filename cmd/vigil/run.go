package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/bugs"
	"github.com/ShayCichocki/vigil/internal/checks"
	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/gate"
	"github.com/ShayCichocki/vigil/internal/health"
	"github.com/ShayCichocki/vigil/internal/pipeline"
	"github.com/ShayCichocki/vigil/internal/scheduler"
	"github.com/ShayCichocki/vigil/pkg/models"
)

var (
	runWorkers int
	runWorkDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the validation scheduler",
	Long: `Run the scheduler loop until interrupted or stopped.

The scheduler recovers orphaned jobs from previous runs, then admits
pending jobs up to the concurrency limit. Each job runs the full
validation pipeline and its report is evaluated against the quality
gates. Failures are classified into bugs; critical and high severity
bugs are queued for re-validation through the backlog.

Control the loop with signal files:
  vigil pause     stop admitting new jobs (running ones finish)
  vigil resume    resume admission
  vigil stop      drain and exit after running jobs finish

Ctrl+C aborts running sessions without charging an attempt; the jobs
are reclaimed on the next run.`,
	RunE: runScheduler,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Override scheduler.max_concurrent")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", "", "Override scheduler.work_dir")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runWorkers > 0 {
		cfg.Scheduler.MaxConcurrent = runWorkers
	}
	if runWorkDir != "" {
		cfg.Scheduler.WorkDir = runWorkDir
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	manager := newManager(db, cfg)

	pl, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	detector, err := buildDetector(db, cfg)
	if err != nil {
		return err
	}

	monitor := health.NewInProcessMonitor(cfg.Scheduler.SessionTimeout)

	signals, err := scheduler.NewSignalManager(cfg.Scheduler.WorkDir)
	if err != nil {
		return fmt.Errorf("init signal manager: %w", err)
	}
	defer signals.Close()

	sched := scheduler.New(manager, db, db, pl, detector, monitor,
		scheduler.WithMaxConcurrent(cfg.Scheduler.MaxConcurrent),
		scheduler.WithSessionTimeout(cfg.Scheduler.SessionTimeout),
		scheduler.WithWatchdogInterval(cfg.Scheduler.WatchdogInterval),
		scheduler.WithWorkDir(cfg.Scheduler.WorkDir),
		scheduler.WithSignals(signals),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("vigil scheduler started (workers=%d, db=%s)\n",
		cfg.Scheduler.MaxConcurrent, db.Path())

	if err := sched.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nInterrupted. Running jobs left for recovery on next start.")
			return nil
		}
		return err
	}

	fmt.Println("Scheduler drained and stopped.")
	return nil
}

// buildPipeline assembles the layer executors from configuration.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	review, err := checks.NewReviewExecutor(checks.ReviewConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("init review executor: %w", err)
	}

	// The security scan runs as part of the code quality layer.
	codeQualityOpts := []checks.CommandExecutorOption{checks.WithTimeout(cfg.Layers.Timeout)}
	if cfg.Layers.SecurityScan != "" {
		codeQualityOpts = append(codeQualityOpts, checks.WithSecurityScan(cfg.Layers.SecurityScan))
	}

	executors := []pipeline.LayerExecutor{
		checks.NewCommandExecutor(models.LayerCodeQuality, layerCommands(cfg.Layers.CodeQuality), codeQualityOpts...),
		checks.NewCommandExecutor(models.LayerFunctional, layerCommands(cfg.Layers.Functional), checks.WithTimeout(cfg.Layers.Timeout)),
		checks.NewCommandExecutor(models.LayerIntegration, layerCommands(cfg.Layers.Integration), checks.WithTimeout(cfg.Layers.Timeout)),
		review,
	}

	return pipeline.New(executors, gate.Config{
		MinCoveragePercent:       cfg.Gates.MinCoveragePercent,
		MaxPerfRegressionPercent: cfg.Gates.MaxPerfRegressionPercent,
		SecurityScanRequired:     cfg.Gates.SecurityScanRequired,
	}), nil
}

func layerCommands(in []config.LayerCommand) []checks.LayerCommand {
	out := make([]checks.LayerCommand, 0, len(in))
	for _, c := range in {
		out = append(out, checks.LayerCommand{Name: c.Name, Command: c.Command})
	}
	return out
}

// buildDetector assembles the bug detector from configuration.
func buildDetector(store bugs.Store, cfg *config.Config) (*bugs.Detector, error) {
	var opts []bugs.DetectorOption
	if cfg.Detector.RulesFile != "" {
		rs, err := bugs.LoadRuleSet(cfg.Detector.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load severity rules: %w", err)
		}
		opts = append(opts, bugs.WithRules(rs))
	}
	if cfg.Detector.MinSeverity != "" {
		opts = append(opts, bugs.WithMinSeverity(models.Severity(cfg.Detector.MinSeverity)))
	}
	return bugs.NewDetector(store, policyEngine(cfg), opts...), nil
}
