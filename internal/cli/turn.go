package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/moments/internal/ir"
)

// TurnOptions holds flags for the turn command.
type TurnOptions struct {
	*RootOptions
	Subject string
	Catalog string
	DB      string
	NoWait  bool
}

// TurnOutput is a processed turn plus the subject's artifacts afterwards.
type TurnOutput struct {
	Result    *ir.TurnResult `json:"result"`
	Artifacts []ir.Artifact  `json:"artifacts"`
}

// NewTurnCommand creates the turn command.
func NewTurnCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TurnOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "turn <context-file|->",
		Short: "Process one turn for a subject",
		Long: `Process one turn for a subject against a catalog.

The subject is restored from the database, the context (YAML or JSON) is
evaluated, generation triggered by the turn is awaited, and the new state is
persisted. Artifacts are rendered from the "template" param of each artifact.

Examples:
  moments turn --subject fam-1 context.yaml
  echo '{"videos_uploaded": 3}' | moments turn --subject fam-1 -
  moments turn --subject fam-1 --catalog moments.cue --db state.db ctx.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "subject id (required)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog file (overrides config)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database (overrides config)")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "return without waiting for generation")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func runTurn(opts *TurnOptions, contextPath string, cmd *cobra.Command) error {
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

	input, err := readContext(contextPath, cmd.InOrStdin())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}

	cat, err := loadCatalog(f, cfg.Catalog.Path)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cfg, cat, cfg.Storage.Path, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out, runErr := processTurn(ctx, rt, opts, input, cfg.Engine.GenerationTimeout)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := rt.close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return f.Fail(ExitCommandError, ErrCodeEngine, runErr.Error(), nil)
	}

	if f.JSON() {
		return f.Success(out)
	}
	writeTurnText(f.Writer, out)
	return nil
}

func processTurn(ctx context.Context, rt *runtime, opts *TurnOptions, input map[string]any, timeout time.Duration) (*TurnOutput, error) {
	if err := rt.restore(ctx, opts.Subject); err != nil {
		return nil, fmt.Errorf("restore %s: %w", opts.Subject, err)
	}

	res, err := rt.engine.ProcessTurn(ctx, opts.Subject, input)
	if err != nil {
		return nil, err
	}

	if !opts.NoWait {
		waitCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, timeout+5*time.Second)
			defer cancel()
		}
		if err := rt.engine.Wait(waitCtx, opts.Subject); err != nil {
			return nil, fmt.Errorf("wait for generation: %w", err)
		}
	}

	snap, err := rt.engine.Snapshot(ctx, opts.Subject)
	if err != nil {
		return nil, err
	}
	return &TurnOutput{Result: res, Artifacts: snap.Artifacts}, nil
}

func writeTurnText(w io.Writer, out *TurnOutput) {
	res := out.Result
	fmt.Fprintf(w, "Turn %d for %s\n", res.Turn, res.SubjectID)

	if len(res.MomentsFired) == 0 {
		fmt.Fprintln(w, "  No moments fired")
	}
	for _, m := range res.MomentsFired {
		if m.Message != "" {
			fmt.Fprintf(w, "  ✓ %s: %s\n", m.ID, m.Message)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", m.ID)
		}
	}
	if len(res.ArtifactsGenerating) > 0 {
		fmt.Fprintf(w, "  generating: %s\n", strings.Join(res.ArtifactsGenerating, ", "))
	}
	if len(res.CardsCreated) > 0 {
		fmt.Fprintf(w, "  cards created: %s\n", strings.Join(res.CardsCreated, ", "))
	}
	if len(res.CardsDismissed) > 0 {
		fmt.Fprintf(w, "  cards dismissed: %s\n", strings.Join(res.CardsDismissed, ", "))
	}

	if len(res.CardsVisible) > 0 {
		fmt.Fprintln(w, "\nVisible cards:")
		for _, c := range res.CardsVisible {
			fmt.Fprintf(w, "  %s [%s] priority %d (%s)\n", c.CardID, c.DisplayMode, c.Priority, c.InstanceID)
		}
	}

	if len(out.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
		for _, a := range out.Artifacts {
			line := fmt.Sprintf("  %s: %s (attempt %d)", a.ArtifactID, a.Status, a.Attempt)
			if a.Error != "" {
				line += ": " + a.Error
			}
			fmt.Fprintln(w, line)
		}
	}
}
