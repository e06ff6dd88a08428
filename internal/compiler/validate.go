package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/moments/internal/ir"
)

// Validate checks a decoded document against the catalog rules.
// Returns all errors found (does not fail-fast). Expressions are checked by
// Compile, which also calls Validate.
func Validate(doc *Document) ConfigErrors {
	var errs ConfigErrors
	add := func(code, field, format string, args ...any) {
		errs = append(errs, &ConfigError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if doc.Version != "" && doc.Version != ir.CatalogVersion {
		add(ErrUnsupportedVersion, "version", "unsupported catalog version %q, expected %q", doc.Version, ir.CatalogVersion)
	}

	artifacts := make(map[string]bool, len(doc.Artifacts))
	for i, a := range doc.Artifacts {
		field := fmt.Sprintf("artifacts[%d]", i)
		if strings.TrimSpace(a.ID) == "" {
			add(ErrMissingID, field+".id", "artifact id is required")
			continue
		}
		if artifacts[a.ID] {
			add(ErrDuplicateID, field+".id", "duplicate artifact id %q", a.ID)
		}
		artifacts[a.ID] = true
	}
	for i, a := range doc.Artifacts {
		for j, req := range a.Requires {
			if !artifacts[req] {
				add(ErrUnknownArtifact, fmt.Sprintf("artifacts[%d].requires[%d]", i, j), "unknown artifact %q", req)
			}
		}
		for j, opt := range a.Optional {
			if !artifacts[opt] {
				add(ErrUnknownArtifact, fmt.Sprintf("artifacts[%d].optional[%d]", i, j), "unknown artifact %q", opt)
			}
		}
	}

	moments := make(map[string]bool, len(doc.Moments))
	for i, m := range doc.Moments {
		field := fmt.Sprintf("moments[%d]", i)
		if strings.TrimSpace(m.ID) == "" {
			add(ErrMissingID, field+".id", "moment id is required")
		} else {
			if moments[m.ID] {
				add(ErrDuplicateID, field+".id", "duplicate moment id %q", m.ID)
			}
			moments[m.ID] = true
		}
		if m.Artifact != "" && !artifacts[m.Artifact] {
			add(ErrUnknownArtifact, field+".artifact", "unknown artifact %q", m.Artifact)
		}
		if m.Card != nil {
			errs = append(errs, validateCard(field+".card", m.Card)...)
		}
	}

	actions := make(map[string]bool, len(doc.Actions))
	for i, a := range doc.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if strings.TrimSpace(a.ID) == "" {
			add(ErrMissingID, field+".id", "action id is required")
			continue
		}
		if actions[a.ID] {
			add(ErrDuplicateID, field+".id", "duplicate action id %q", a.ID)
		}
		actions[a.ID] = true
	}

	stateCards := make(map[string]bool, len(doc.StateCards))
	for i, sc := range doc.StateCards {
		field := fmt.Sprintf("state_cards[%d]", i)
		if strings.TrimSpace(sc.CardID) == "" {
			add(ErrMissingID, field+".card_id", "state card id is required")
		} else {
			if stateCards[sc.CardID] {
				add(ErrDuplicateID, field+".card_id", "duplicate state card id %q", sc.CardID)
			}
			stateCards[sc.CardID] = true
		}
		if len(sc.When) == 0 {
			add(ErrInvalidCard, field+".when", "state card requires a non-empty when condition")
		}
		if sc.DisplayMode != "" && !ir.ValidDisplayModes[ir.DisplayMode(sc.DisplayMode)] {
			add(ErrInvalidCard, field+".display_mode", "invalid display mode %q", sc.DisplayMode)
		}
		if sc.Priority < 0 {
			add(ErrInvalidCard, field+".priority", "priority must be >= 0, got %d", sc.Priority)
		}
		errs = append(errs, validateDynamicFields(field, sc.DynamicFields)...)
	}

	return errs
}

func validateCard(field string, c *CardDoc) ConfigErrors {
	var errs ConfigErrors
	if strings.TrimSpace(c.CardID) == "" {
		errs = append(errs, &ConfigError{Code: ErrMissingID, Field: field + ".card_id", Message: "card id is required"})
	}
	if c.DisplayMode != "" && !ir.ValidDisplayModes[ir.DisplayMode(c.DisplayMode)] {
		errs = append(errs, &ConfigError{
			Code:    ErrInvalidCard,
			Field:   field + ".display_mode",
			Message: fmt.Sprintf("invalid display mode %q", c.DisplayMode),
		})
	}
	if c.Priority < 0 {
		errs = append(errs, &ConfigError{
			Code:    ErrInvalidCard,
			Field:   field + ".priority",
			Message: fmt.Sprintf("priority must be >= 0, got %d", c.Priority),
		})
	}
	if c.AutoDismissAfterSeconds < 0 {
		errs = append(errs, &ConfigError{
			Code:    ErrInvalidCard,
			Field:   field + ".auto_dismiss_after_seconds",
			Message: fmt.Sprintf("timeout must be >= 0, got %d", c.AutoDismissAfterSeconds),
		})
	}
	return append(errs, validateDynamicFields(field, c.DynamicFields)...)
}

func validateDynamicFields(field string, fields map[string]string) ConfigErrors {
	var errs ConfigErrors
	for _, name := range sortedKeys(fields) {
		if strings.TrimSpace(fields[name]) == "" {
			errs = append(errs, &ConfigError{
				Code:    ErrInvalidPlaceholder,
				Field:   fmt.Sprintf("%s.dynamic_fields.%s", field, name),
				Message: "dynamic field needs a context path",
			})
		}
	}
	return errs
}
