package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/moments/internal/config"
	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/generate"
	"github.com/roach88/moments/internal/ir"
)

// FeasibleOptions holds flags for the feasible command.
type FeasibleOptions struct {
	*RootOptions
	Catalog string
	DB      string
	Subject string
}

// NewFeasibleCommand creates the feasible command.
func NewFeasibleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeasibleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feasible <action> [context-file|-]",
		Short: "Check whether an action's prerequisite holds",
		Long: `Evaluate an action's prerequisite against a context without side effects.

With --subject the subject's persisted artifacts are visible to the
prerequisite under artifacts.<id>.

Exit codes:
  0 - Action is feasible
  1 - Action is not feasible
  2 - Command error (unknown action, unreadable context)`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			contextPath := ""
			if len(args) > 1 {
				contextPath = args[1]
			}
			return runFeasible(opts, args[0], contextPath, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog file (overrides config)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database (overrides config, used with --subject)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "evaluate against this subject's artifacts")

	return cmd
}

func runFeasible(opts *FeasibleOptions, actionID, contextPath string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Catalog != "" {
		cfg.Catalog.Path = opts.Catalog
	}
	if opts.DB != "" {
		cfg.Storage.Path = opts.DB
	}
	logger := opts.Logger(cmd.ErrOrStderr(), cfg.Log.Level)

	input := map[string]any{}
	if contextPath != "" {
		input, err = readContext(contextPath, cmd.InOrStdin())
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
		}
	}

	cat, err := loadCatalog(f, cfg.Catalog.Path)
	if err != nil {
		return err
	}
	if _, ok := cat.Action(actionID); !ok {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("unknown action %q", actionID), nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result ir.Feasibility
	if opts.Subject != "" {
		result, err = subjectFeasibility(ctx, cfg, cat, opts.Subject, actionID, input, logger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
		}
	} else {
		e := engine.New(cat, noGenerator, engine.WithLogger(logger))
		defer e.Close(ctx)
		result, err = e.IsActionFeasible(actionID, input)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeEngine, err.Error(), nil)
		}
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		writeFeasibilityText(f.Writer, result)
	}

	if !result.Feasible {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeInfeasible, result.Explanation))
	}
	return nil
}

// noGenerator serves engines that only answer feasibility queries.
var noGenerator = generate.Func(func(context.Context, generate.Request) (map[string]any, error) {
	return nil, errors.New("generation disabled")
})

func subjectFeasibility(ctx context.Context, cfg *config.Config, cat *ir.Catalog, subjectID, actionID string, input map[string]any, logger *slog.Logger) (ir.Feasibility, error) {
	rt, err := openRuntime(cfg, cat, cfg.Storage.Path, logger)
	if err != nil {
		return ir.Feasibility{}, err
	}
	defer rt.close(context.WithoutCancel(ctx))

	if err := rt.restore(ctx, subjectID); err != nil {
		return ir.Feasibility{}, err
	}
	return rt.engine.IsActionFeasibleFor(ctx, subjectID, actionID, input)
}

func writeFeasibilityText(w io.Writer, f ir.Feasibility) {
	if f.Feasible {
		fmt.Fprintf(w, "✓ %s is feasible: %s\n", f.ActionID, f.Explanation)
		return
	}
	fmt.Fprintf(w, "✗ %s is not feasible: %s\n", f.ActionID, f.Explanation)
	for _, m := range f.Missing {
		fmt.Fprintf(w, "  missing: %s\n", m)
	}
}
