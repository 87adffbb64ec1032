package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/scheduler"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause job admission on a running scheduler",
	Long: `Signal a running scheduler to stop admitting new jobs.

Running validations finish normally. Use 'vigil resume' to resume
admission.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := openSignals()
		if err != nil {
			return err
		}
		defer sm.Close()

		if err := sm.SendPause(); err != nil {
			return fmt.Errorf("send pause signal: %w", err)
		}
		fmt.Println("Pause signal sent.")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume job admission on a paused scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := openSignals()
		if err != nil {
			return err
		}
		defer sm.Close()

		if err := sm.Resume(); err != nil {
			return fmt.Errorf("remove pause signal: %w", err)
		}
		fmt.Println("Resume signal sent.")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Gracefully stop a running scheduler",
	Long: `Signal a running scheduler to drain and exit.

Running validations finish and their reports are recorded before the
scheduler exits. No new jobs are admitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := openSignals()
		if err != nil {
			return err
		}
		defer sm.Close()

		if err := sm.SendStop(); err != nil {
			return fmt.Errorf("send stop signal: %w", err)
		}
		fmt.Println("Stop signal sent. Scheduler will drain and exit.")
		return nil
	},
}

func openSignals() (*scheduler.SignalManager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	sm, err := scheduler.NewSignalManager(cfg.Scheduler.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("init signal manager: %w", err)
	}
	return sm, nil
}
