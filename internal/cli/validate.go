package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/moments/internal/ir"
)

// ValidationResult summarizes a valid catalog.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	Moments    int    `json:"moments"`
	Artifacts  int    `json:"artifacts"`
	Actions    int    `json:"actions"`
	StateCards int    `json:"state_cards"`
	Hash       string `json:"hash"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Validate a moment catalog",
		Long: `Load and validate a moment catalog (YAML or CUE) without running it.

Reports every configuration error: unknown artifact references, dependency
cycles, malformed condition expressions and invalid card templates.
Without an argument the catalog path comes from the configuration.

Exit codes:
  0 - Catalog is valid
  1 - Catalog has configuration errors
  2 - Command error (file not found, bad config)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	path, err := catalogPath(opts, args)
	if err != nil {
		return err
	}

	cat, err := loadCatalog(f, path)
	if err != nil {
		return err
	}

	result := summarize(cat)
	if f.JSON() {
		return f.Success(result)
	}

	w := f.Writer
	fmt.Fprintf(w, "✓ Catalog valid: %s\n", path)
	fmt.Fprintf(w, "  %d moment(s), %d artifact(s), %d action(s), %d state card(s)\n",
		result.Moments, result.Artifacts, result.Actions, result.StateCards)
	if opts.Verbose {
		fmt.Fprintf(w, "  hash: %s\n", result.Hash)
	}
	return nil
}

func summarize(cat *ir.Catalog) ValidationResult {
	return ValidationResult{
		Valid:      true,
		Moments:    len(cat.Moments),
		Artifacts:  len(cat.Artifacts),
		Actions:    len(cat.Actions),
		StateCards: len(cat.StateCards),
		Hash:       cat.Hash,
	}
}

// catalogPath is the positional argument, or the configured catalog.
func catalogPath(opts *RootOptions, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Catalog.Path, nil
}
