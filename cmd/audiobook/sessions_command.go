package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audiobook/internal/pipeline"
	"audiobook/internal/sessionstore"
	"audiobook/internal/stationid"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with stations left to run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := ctx.openPipeline(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer handle.Close()

			sessions, err := handle.runner.ListIncomplete(cmd.Context(), all)
			if err != nil {
				return err
			}
			if jsonOutput {
				if sessions == nil {
					sessions = []pipeline.IncompleteSession{}
				}
				return writeJSON(cmd, sessions)
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No incomplete sessions")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				next := "done"
				if s.NextStartAt != nil {
					next = s.NextStartAt.String()
				}
				rows = append(rows, []string{s.SessionID, idOrDash(s.Highest), next, joinIDs(s.Stale)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "Highest", "Next", "Stale"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include completed sessions")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print sessions as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <session> [station]",
		Short: "Show a session's stations, or one station's stored output",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := strings.TrimSpace(args[0])
			if err := sessionstore.ValidateSessionID(sessionID); err != nil {
				return err
			}
			handle, err := ctx.openPipeline(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer handle.Close()

			if len(args) == 2 {
				id, err := stationid.Parse(args[1])
				if err != nil {
					return fmt.Errorf("station: %w", err)
				}
				output, err := handle.store.Read(cmd.Context(), sessionID, id)
				if err != nil {
					return err
				}
				if output == nil {
					return fmt.Errorf("session %s has no output for station %s", sessionID, id)
				}
				return writeJSON(cmd, output)
			}

			status, err := handle.runner.Status(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderSessionStatus(cmd, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the session status as JSON")
	return cmd
}

func renderSessionStatus(cmd *cobra.Command, status pipeline.SessionStatus) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(status.Stations))
	for _, st := range status.Stations {
		rows = append(rows, []string{st.ID.String(), st.Name, joinIDs(st.Dependencies), yesNo(st.Stored), yesNo(st.Stale)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Station", "Name", "Depends on", "Stored", "Stale"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	if status.NextStartAt != nil {
		fmt.Fprintf(out, "Next: audiobook run %s --start-at %s\n", status.SessionID, status.NextStartAt)
	} else {
		fmt.Fprintln(out, "Session complete")
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete every stored output of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := strings.TrimSpace(args[0])
			if err := sessionstore.ValidateSessionID(sessionID); err != nil {
				return err
			}
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.DeleteSession(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s not found\n", sessionID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s (%d keys)\n", sessionID, removed)
			return nil
		},
	}
}

func joinIDs(ids []stationid.ID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ", ")
}

func idOrDash(id stationid.ID) string {
	if id.IsZero() {
		return "-"
	}
	return id.String()
}
