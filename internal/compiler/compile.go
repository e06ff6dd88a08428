package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/moments/internal/condition"
	"github.com/roach88/moments/internal/ir"
)

// Compile validates a decoded document and builds the immutable catalog.
// raw is the generic form of the same document, used only for the hash; if
// nil the typed document is hashed instead.
//
// All problems are reported together as ConfigErrors.
func Compile(doc *Document, raw map[string]any) (*ir.Catalog, error) {
	if doc == nil {
		return nil, &ConfigError{Code: ErrParse, Field: "document", Message: "document is nil"}
	}

	errs := Validate(doc)

	for _, c := range FindDependencyCycles(doc.Artifacts) {
		errs = append(errs, &ConfigError{Code: ErrDependencyCycle, Field: "artifacts." + c.Path[0] + ".requires", Message: c.Message})
	}

	c := &catalogCompiler{}

	moments := make([]ir.MomentDefinition, 0, len(doc.Moments))
	for i, m := range doc.Moments {
		moments = append(moments, c.moment(fmt.Sprintf("moments[%d]", i), m))
	}

	artifacts := make([]ir.ArtifactDefinition, 0, len(doc.Artifacts))
	for _, a := range doc.Artifacts {
		artifacts = append(artifacts, ir.ArtifactDefinition{
			ID:         a.ID,
			Requires:   slices.Clone(a.Requires),
			Optional:   slices.Clone(a.Optional),
			Params:     a.Params,
			Validation: ir.ArtifactValidation{NonEmpty: slices.Clone(a.NonEmpty)},
		})
	}

	actions := make([]ir.ActionDefinition, 0, len(doc.Actions))
	for i, a := range doc.Actions {
		actions = append(actions, ir.ActionDefinition{
			ID:              a.ID,
			Description:     a.Description,
			Prerequisite:    c.optional(fmt.Sprintf("actions[%d].prerequisite", i), a.Prerequisite),
			RawPrerequisite: a.Prerequisite,
		})
	}

	stateCards := make([]ir.StateCardDefinition, 0, len(doc.StateCards))
	for i, sc := range doc.StateCards {
		stateCards = append(stateCards, ir.StateCardDefinition{
			CardID:        sc.CardID,
			DisplayMode:   displayMode(sc.DisplayMode),
			Priority:      sc.Priority,
			When:          c.optional(fmt.Sprintf("state_cards[%d].when", i), sc.When),
			RawWhen:       sc.When,
			Content:       sc.Content,
			DynamicFields: sc.DynamicFields,
		})
	}

	errs = append(errs, c.errs...)
	if len(errs) > 0 {
		return nil, errs
	}

	var hashInput any = raw
	if raw == nil {
		hashInput = doc
	}
	generic, err := toGeneric(hashInput)
	if err != nil {
		return nil, fmt.Errorf("hash catalog: %w", err)
	}
	hash, err := ir.CatalogHash(generic)
	if err != nil {
		return nil, fmt.Errorf("hash catalog: %w", err)
	}

	return ir.NewCatalog(moments, artifacts, actions, stateCards, hash), nil
}

// catalogCompiler accumulates expression errors while building definitions.
type catalogCompiler struct {
	errs ConfigErrors
}

func (c *catalogCompiler) moment(field string, m MomentDoc) ir.MomentDefinition {
	def := ir.MomentDefinition{
		ID:              m.ID,
		Prerequisite:    c.optional(field+".prerequisite", m.Prerequisite),
		RawPrerequisite: m.Prerequisite,
		ArtifactID:      m.Artifact,
		Message:         m.Message,
		UIContext:       m.UIContext,
	}
	if m.Card != nil {
		def.Card = &ir.CardTemplate{
			CardID:                  m.Card.CardID,
			DisplayMode:             displayMode(m.Card.DisplayMode),
			Priority:                m.Card.Priority,
			Content:                 m.Card.Content,
			DynamicFields:           m.Card.DynamicFields,
			DismissWhen:             c.optional(field+".card.dismiss_when", m.Card.DismissWhen),
			RawDismissWhen:          m.Card.DismissWhen,
			AutoDismissAfterSeconds: m.Card.AutoDismissAfterSeconds,
			ShowOnce:                m.Card.ShowOnce,
		}
	}
	return def
}

// optional compiles an expression that may be absent. An absent or empty
// expression compiles to nil.
func (c *catalogCompiler) optional(field string, raw map[string]any) condition.Expr {
	if len(raw) == 0 {
		return nil
	}
	expr, err := condition.Compile(raw)
	if err != nil {
		c.errs = append(c.errs, &ConfigError{Code: ErrInvalidExpression, Field: field, Message: err.Error()})
		return nil
	}
	return expr
}

func displayMode(s string) ir.DisplayMode {
	if s == "" {
		return ir.DisplayInline
	}
	return ir.DisplayMode(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// toGeneric normalizes a decoded document (YAML maps, CUE values, typed
// structs) into plain JSON data so equal documents hash alike regardless of
// the format they were written in.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
