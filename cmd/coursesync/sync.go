package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prairielearn/backend/internal/fromdisk"
	"prairielearn/backend/internal/telemetry"
)

func newSyncCommand(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "sync <course-dir>...",
		Short: "Sync one or more course directories",
		Long: `Load each course directory and reconcile its tags, questions and
question tags with the database.

Courses sync in parallel. A course that fails does not stop the others;
the command exits non-zero if any course or question failed.

Examples:
  coursesync sync ./courses/tam212
  coursesync sync --concurrency 8 ./courses/*`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, a, concurrency)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "courses synced at once (default SYNC_CONCURRENCY)")
	return cmd
}

func runSync(cmd *cobra.Command, dirs []string, a *app, concurrency int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := a.config()
	if err != nil {
		return err
	}
	log, err := a.logger()
	if err != nil {
		return err
	}
	db, err := a.database()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.OtelEnabled,
		Exporter:    cfg.OtelExporter,
		ServiceName: cfg.OtelServiceName,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(cmd.Context()); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	if concurrency < 1 {
		concurrency = cfg.SyncConcurrency
	}

	results, syncErr := fromdisk.NewSyncer(db, log, nil).SyncDirs(ctx, dirs, concurrency)

	out := cmd.OutOrStdout()
	for _, r := range results {
		// Courses that failed outright are reported through syncErr.
		if r == nil {
			continue
		}
		status := "OK"
		if len(r.QuestionErrors) > 0 {
			status = "WARN"
		}
		fmt.Fprintf(out, "%-4s  %s: %d tags, %d questions in %s\n",
			status, r.CourseName, len(r.TagIDs), len(r.QuestionIDs), r.Duration.Round(time.Millisecond))
		for _, qe := range r.QuestionErrors {
			fmt.Fprintf(out, "      %s\n", qe)
		}
	}
	return syncErr
}
