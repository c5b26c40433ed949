package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/statedoc"
)

// ValidationResult holds validation results for JSON output.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Fields []string `json:"fields,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var updatesPath string

	cmd := &cobra.Command{
		Use:   "validate <state.yaml>",
		Short: "Validate a state document against the schema",
		Long: `Validate a YAML state document against the embedded schema.

Checks that every root field is a record or a collection and that every
collection entity carries an integer id. With --updates, also validates
an update batch file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0], updatesPath)
		},
	}

	cmd.Flags().StringVar(&updatesPath, "updates", "", "also validate an update batch file")
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, docPath, updatesPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	doc, err := statedoc.LoadDocument(docPath)
	if err != nil {
		return outputDocError(formatter, err)
	}
	formatter.VerboseLog("Loaded %d root field(s) from %s", len(doc), docPath)

	fields := make([]string, 0, len(doc))
	for name := range doc {
		fields = append(fields, name)
	}

	if updatesPath != "" {
		updates, err := statedoc.LoadUpdates(updatesPath)
		if err != nil {
			return outputDocError(formatter, err)
		}
		formatter.VerboseLog("Loaded %d update(s) from %s", len(updates), updatesPath)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Fields: fields})
	}
	fmt.Fprintln(formatter.Writer, "✓ Document valid")
	return nil
}

// outputDocError reports a document loading failure with the right exit
// code: unreadable files are command errors, schema violations are
// validation failures.
func outputDocError(formatter *OutputFormatter, err error) error {
	var docErr *statedoc.Error
	if errors.As(err, &docErr) {
		_ = formatter.Error(docErr.Code, docErr.Message, nil)
		code := ExitFailure
		if docErr.Code == statedoc.ErrCodeRead {
			code = ExitCommandError
		}
		return NewExitError(code, docErr.Error())
	}
	_ = formatter.Error("E001", err.Error(), nil)
	return NewExitError(ExitFailure, err.Error())
}
