package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/skimmer/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	File     string   `json:"file"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a config file",
		Long: `Validate a skimmer config file against the config schema, then check
the values the schema cannot express: endpoint ports, band names and the
cluster selection against the catalog.

Environment overrides are not applied.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	formatter.VerboseLog("Validating %s against the config schema", path)
	if err := config.ValidateFile(path); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return outputValidationFailure(formatter, ErrCodeConfigSchema, path, verr.Problems, err)
		}
		code := ErrCodeGeneric
		if errors.Is(err, fs.ErrNotExist) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, fmt.Sprintf("cannot read %s", path), err.Error())
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	formatter.VerboseLog("Checking values")
	if _, err := config.Load(config.Options{File: path, IgnoreEnv: true}); err != nil {
		return outputValidationFailure(formatter, ErrCodeConfigField, path, []string{err.Error()}, err)
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, File: path})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
	return nil
}

func outputValidationFailure(f *OutputFormatter, code, path string, problems []string, err error) error {
	if f.Format == "json" {
		_ = f.Error(code, "config invalid", ValidationResult{File: path, Problems: problems})
	} else {
		fmt.Fprintf(f.Writer, "✗ %s is invalid\n", path)
		for _, p := range problems {
			fmt.Fprintf(f.Writer, "  %s\n", p)
		}
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("%s [%s]", path, code), err)
}
