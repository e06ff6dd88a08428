package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/moments/internal/compiler"
	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/config"
	"github.com/roach88/moments/internal/engine"
	"github.com/roach88/moments/internal/generate"
	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/store"
)

// TemplateParam is the artifact param holding a text/template source for the
// CLI's template generator.
const TemplateParam = "template"

// configErrors extracts catalog configuration errors from err.
func configErrors(err error) compiler.ConfigErrors {
	var ces compiler.ConfigErrors
	if errors.As(err, &ces) {
		return ces
	}
	var ce *compiler.ConfigError
	if errors.As(err, &ce) {
		return compiler.ConfigErrors{ce}
	}
	return nil
}

// loadCatalog compiles a catalog file, mapping failures to exit codes:
// unreadable file is a command error, invalid content a failure.
func loadCatalog(f *OutputFormatter, path string) (*ir.Catalog, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("catalog not found: %s", path), nil)
	}
	cat, err := compiler.LoadFile(path)
	if err != nil {
		if ces := configErrors(err); len(ces) > 0 {
			return nil, f.Fail(ExitFailure, ErrCodeInvalidCatalog, err.Error(), ces)
		}
		return nil, f.Fail(ExitCommandError, errCode(err), err.Error(), nil)
	}
	return cat, nil
}

// errCode picks the code for an error with no specific mapping.
func errCode(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return ErrCodeNotFound
	}
	return ErrCodeBadInput
}

// readContext decodes a YAML or JSON context document. "-" reads stdin.
func readContext(path string, stdin io.Reader) (condition.Context, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}

	ctx := condition.Context{}
	if len(bytes.TrimSpace(data)) == 0 {
		return ctx, nil
	}
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	return ctx, nil
}

// templateGenerator builds a generator from the "template" param of each
// artifact. Artifacts without one fail generation with a clear error.
func templateGenerator(cat *ir.Catalog, timeout time.Duration) (generate.Generator, error) {
	sources := make(map[string]string)
	for _, a := range cat.Artifacts {
		if src, ok := a.Params[TemplateParam].(string); ok {
			sources[a.ID] = src
		}
	}
	tmpl, err := generate.NewTemplate(sources)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		return generate.WithTimeout(tmpl, timeout), nil
	}
	return tmpl, nil
}

// runtime is an engine backed by a SQLite store.
type runtime struct {
	engine *engine.Engine
	store  *store.Store
}

func openRuntime(cfg *config.Config, cat *ir.Catalog, dbPath string, logger *slog.Logger, opts ...engine.Option) (*runtime, error) {
	gen, err := templateGenerator(cat, cfg.Engine.GenerationTimeout)
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	st, err := store.Open(dbPath, store.WithDriver(cfg.Storage.Driver))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	all := append(cfg.Engine.Options(),
		engine.WithLogger(logger),
		engine.WithPersister(st),
	)
	all = append(all, opts...)

	return &runtime{engine: engine.New(cat, gen, all...), store: st}, nil
}

// restore hydrates a subject from the store if anything was persisted.
func (r *runtime) restore(ctx context.Context, subjectID string) error {
	snap, err := r.store.LoadSnapshot(ctx, subjectID)
	if err != nil {
		return err
	}
	if snap.Turn == 0 && len(snap.Artifacts) == 0 && len(snap.Cards) == 0 {
		return nil
	}
	return r.engine.Restore(ctx, snap)
}

func (r *runtime) close(ctx context.Context) error {
	return errors.Join(r.engine.Close(ctx), r.store.Close())
}
