package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/journal"
	"github.com/roach88/reflow/internal/state"
	"github.com/roach88/reflow/internal/statedoc"
)

// EventSummary is one flushed event in apply output.
type EventSummary struct {
	Seq    int64  `json:"seq"`
	Name   string `json:"name"`
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
}

// ApplyResult holds apply results for JSON output.
type ApplyResult struct {
	Events []EventSummary `json:"events"`
	State  map[string]any `json:"state"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var journalPath string

	cmd := &cobra.Command{
		Use:   "apply <state.yaml> <updates.yaml>",
		Short: "Apply an update batch to a state document",
		Long: `Load a state document, apply an update batch inside one mutation
window, and print the flushed change events plus the resulting state.

The event list is deterministic: same document and batch, same output.
With --journal, the flushed events are also recorded to a SQLite trace.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, cmd, args[0], args[1], journalPath)
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "record flushed events to a SQLite journal")
	return cmd
}

func runApply(opts *RootOptions, cmd *cobra.Command, docPath, updatesPath, journalPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := context.Background()

	doc, err := statedoc.LoadDocument(docPath)
	if err != nil {
		return outputDocError(formatter, err)
	}
	updates, err := statedoc.LoadUpdates(updatesPath)
	if err != nil {
		return outputDocError(formatter, err)
	}
	formatter.VerboseLog("Applying %d update(s) to %d root field(s)", len(updates), len(doc))

	var managerOpts []state.Option
	var trace *journal.Journal
	if journalPath != "" {
		trace, err = journal.Open(journalPath)
		if err != nil {
			_ = formatter.Error("E001", err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		defer trace.Close()

		// Resume past any recorded seqs so the new trace appends cleanly.
		clock, err := trace.ResumeClock(ctx)
		if err != nil {
			_ = formatter.Error("E001", err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		managerOpts = append(managerOpts, state.WithClock(clock))
	}

	manager := state.New(managerOpts...)
	var flushed []EventSummary
	manager.OnFlush(func(batch []state.Event) {
		for _, ev := range batch {
			flushed = append(flushed, EventSummary{
				Seq:    ev.Seq,
				Name:   ev.Name,
				Action: string(ev.Action),
				ID:     ev.ID,
			})
		}
		if trace != nil {
			if err := trace.RecordFlush(ctx, "", batch); err != nil {
				formatter.VerboseLog("journal write failed: %v", err)
			}
		}
	})

	if err := manager.SetInitialState(doc); err != nil {
		_ = formatter.Error(string(state.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	if err := manager.Mutate(func(w *state.Writer) error {
		return w.ProcessUpdates(updates)
	}); err != nil {
		_ = formatter.Error(string(state.CodeOf(err)), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	result := ApplyResult{Events: flushed, State: manager.Export()}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, ev := range result.Events {
		if ev.ID != 0 {
			fmt.Fprintf(formatter.Writer, "seq %d  %s (%s, id=%d)\n", ev.Seq, ev.Name, ev.Action, ev.ID)
		} else {
			fmt.Fprintf(formatter.Writer, "seq %d  %s (%s)\n", ev.Seq, ev.Name, ev.Action)
		}
	}
	fmt.Fprintf(formatter.Writer, "✓ Applied %d update(s), %d event(s) flushed\n", len(updates), len(result.Events))
	return nil
}
