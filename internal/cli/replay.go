package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/journal"
)

// ReplayResult holds replay results for JSON output.
type ReplayResult struct {
	Traces []journal.Trace       `json:"traces,omitempty"`
	Events []journal.EventRecord `json:"events,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "replay <journal.db>",
		Short: "Print the recorded dispatch and event trace",
		Long: `Read a journal database and print its dispatches with the change
events each one flushed, in deterministic seq order.

With --token, prints only the events of that dispatch.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd, args[0], token)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "limit output to one dispatch token")
	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command, path, token string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := context.Background()

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error("E001", fmt.Sprintf("journal not found: %s", path), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	trace, err := journal.Open(path)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer trace.Close()

	if token != "" {
		events, err := trace.Events(ctx, token)
		if err != nil {
			_ = formatter.Error("E001", err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		if formatter.Format == "json" {
			return formatter.Success(ReplayResult{Events: events})
		}
		printEvents(formatter, events)
		return nil
	}

	traces, err := trace.Traces(ctx)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	if formatter.Format == "json" {
		return formatter.Success(ReplayResult{Traces: traces})
	}

	for _, tr := range traces {
		fmt.Fprintf(formatter.Writer, "dispatch %s  %s %v\n", tr.Dispatch.Token, tr.Dispatch.Mutation, tr.Dispatch.Args)
		printEvents(formatter, tr.Events)
	}
	if len(traces) == 0 {
		fmt.Fprintln(formatter.Writer, "journal is empty")
	}
	return nil
}

func printEvents(formatter *OutputFormatter, events []journal.EventRecord) {
	for _, ev := range events {
		if ev.ID != 0 {
			fmt.Fprintf(formatter.Writer, "  seq %d  %s (%s, id=%d)\n", ev.Seq, ev.Name, ev.Action, ev.ID)
		} else {
			fmt.Fprintf(formatter.Writer, "  seq %d  %s (%s)\n", ev.Seq, ev.Name, ev.Action)
		}
	}
}
