package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audiobook/internal/pipeline"
	"audiobook/internal/preflight"
	"audiobook/internal/services"
	"audiobook/internal/sessionstore"
	"audiobook/internal/stationid"
)

// errRunFailed marks a run whose report was already printed.
var errRunFailed = errors.New("run failed")

type runFlags struct {
	startAt        string
	only           bool
	nonInteractive bool
	jsonOutput     bool
	skipPreflight  bool
	inputs         []string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [session]",
		Short: "Run a session from its resume point (a new session when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := ""
			if len(args) == 1 {
				sessionID = strings.TrimSpace(args[0])
			}
			if sessionID == "" {
				if flags.startAt != "" {
					return errors.New("--start-at requires a session id")
				}
				sessionID = ctx.newSessionID()
			}
			opts := pipeline.RunOptions{Only: flags.only}
			if flags.startAt != "" {
				id, err := stationid.Parse(flags.startAt)
				if err != nil {
					return fmt.Errorf("--start-at: %w", err)
				}
				opts.StartAt = &id
			} else if flags.only {
				return errors.New("--only requires --start-at")
			}
			return executeRun(cmd, ctx, sessionID, opts, flags)
		},
	}

	addRunFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.startAt, "start-at", "", "Station id to start from (e.g. 3 or 4.5)")
	cmd.Flags().BoolVar(&flags.only, "only", false, "Run only the --start-at station")
	return cmd
}

func newRerunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "rerun <session> <station>",
		Short: "Re-run one station and mark later stored stations stale",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := stationid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("station: %w", err)
			}
			opts := pipeline.RunOptions{StartAt: &id, Only: true}
			return executeRun(cmd, ctx, strings.TrimSpace(args[0]), opts, flags)
		},
	}

	addRunFlags(cmd, &flags)
	return cmd
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().BoolVar(&flags.nonInteractive, "non-interactive", false, "Never prompt; take --input answers or the first option")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the run report as JSON")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip directory, catalog and store checks")
	cmd.Flags().StringArrayVar(&flags.inputs, "input", nil, "Answer for an operator question as key=value (repeatable)")
}

func executeRun(cmd *cobra.Command, ctx *commandContext, sessionID string, opts pipeline.RunOptions, flags runFlags) error {
	if err := sessionstore.ValidateSessionID(sessionID); err != nil {
		return err
	}
	inputs, err := parseInputs(flags.inputs)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !flags.skipPreflight {
		results := preflight.RunAll(runCtx, cfg, preflight.Options{SkipLLM: true})
		if err := preflight.Err(results); err != nil {
			return err
		}
	}

	interactive := cfg.Pipeline.Interactive && !flags.nonInteractive && !flags.jsonOutput
	prompter := buildPrompter(inputs, interactive, cmd.InOrStdin(), cmd.OutOrStdout())

	handle, err := ctx.openPipeline(runCtx, prompter, true)
	if err != nil {
		return err
	}
	defer handle.Close()

	report := handle.runner.Run(runCtx, sessionID, opts)

	if flags.jsonOutput {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else {
		renderRunReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
	}
	if !report.Succeeded() {
		if report.Failure.Kind == services.KindCancelled {
			return context.Canceled
		}
		return errRunFailed
	}
	return nil
}

func renderRunReport(out io.Writer, report pipeline.RunReport, colorize bool) {
	for _, line := range renderSectionHeader("Session "+report.SessionID, colorize) {
		fmt.Fprintln(out, line)
	}
	if len(report.Stations) == 0 && report.Failure == nil {
		fmt.Fprintln(out, renderStatusLine("Stations", statusInfo, "nothing to run", colorize))
	}
	for _, res := range report.Stations {
		label := pipeline.DisplayName(res.ID, res.Name)
		if res.Status == pipeline.StationCompleted {
			fmt.Fprintln(out, renderStatusLine(label, statusOK, fmt.Sprintf("%s (%s)", strings.Join(res.Keys, ", "), res.Duration.Round(time.Millisecond)), colorize))
			continue
		}
		fmt.Fprintln(out, renderStatusLine(label, statusError, res.Error, colorize))
	}
	if len(report.Stale) > 0 {
		ids := make([]string, 0, len(report.Stale))
		for _, id := range report.Stale {
			ids = append(ids, id.String())
		}
		fmt.Fprintln(out, renderStatusLine("Stale", statusWarn, strings.Join(ids, ", "), colorize))
	}

	if f := report.Failure; f != nil {
		where := "session"
		if !f.Station.IsZero() {
			where = "station " + f.Station.String()
		}
		fmt.Fprintln(out, renderStatusLine("Failed", statusError, fmt.Sprintf("%s [%s] %s", where, f.Kind, f.Message), colorize))
		if f.Hint != "" {
			fmt.Fprintln(out, renderStatusLine("Hint", statusInfo, f.Hint, colorize))
		}
	}
	if hint := report.ResumeHint(); hint != "" {
		fmt.Fprintln(out, renderStatusLine("Resume with", statusInfo, hint, colorize))
	}
	if report.Completed {
		fmt.Fprintln(out, renderStatusLine("Session", statusOK, "complete", colorize))
	}
}
