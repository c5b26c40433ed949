package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/dom"
	"github.com/roach88/reflow/internal/vdom"
)

// DiffResult holds diff results for JSON output.
type DiffResult struct {
	Mutations   int      `json:"mutations"`
	Delegations []string `json:"delegations,omitempty"`
	HTML        string   `json:"html"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <live.html> <next.html>",
		Short: "Reconcile a markup fragment onto a live fragment",
		Long: `Parse two single-root HTML fragments, patch the second onto the
first, and print the result: the patched markup, the mutation count,
and any component boundaries that were delegated instead of diffed.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, cmd, args[0], args[1])
		},
	}
	return cmd
}

func runDiff(opts *RootOptions, cmd *cobra.Command, livePath, nextPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	live, err := parseFragmentFile(livePath)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	next, err := parseFragmentFile(nextPath)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	// Ownership markers in standalone fragments have no registered
	// components behind them; every boundary is reported, none patched.
	result := vdom.Patch(live, next, vdom.Options{
		OwnerSelector: func(owner string) (string, bool) {
			return "[" + vdom.OwnerAttr + "=" + owner + "]", true
		},
	})

	owners := make([]string, 0, len(result.Delegations))
	for _, d := range result.Delegations {
		owners = append(owners, d.Owner)
	}

	patched, err := dom.Render(live)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	out := DiffResult{
		Mutations:   result.Mutations,
		Delegations: owners,
		HTML:        patched,
	}
	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	fmt.Fprintln(formatter.Writer, out.HTML)
	fmt.Fprintf(formatter.Writer, "%d mutation(s)\n", out.Mutations)
	for _, owner := range owners {
		fmt.Fprintf(formatter.Writer, "delegated: %s\n", owner)
	}
	return nil
}

func parseFragmentFile(path string) (*html.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return dom.ParseFragment(string(data))
}
