package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/moments/internal/ir"
)

// Document is the decoded form of a catalog file. Field tags cover both
// YAML and the JSON view CUE decodes through.
type Document struct {
	Version    string         `yaml:"version,omitempty" json:"version,omitempty"`
	Moments    []MomentDoc    `yaml:"moments" json:"moments"`
	Artifacts  []ArtifactDoc  `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	Actions    []ActionDoc    `yaml:"actions,omitempty" json:"actions,omitempty"`
	StateCards []StateCardDoc `yaml:"state_cards,omitempty" json:"state_cards,omitempty"`
}

// MomentDoc is one entry under "moments".
type MomentDoc struct {
	ID           string         `yaml:"id" json:"id"`
	Prerequisite map[string]any `yaml:"prerequisite,omitempty" json:"prerequisite,omitempty"`
	Artifact     string         `yaml:"artifact,omitempty" json:"artifact,omitempty"`
	Message      string         `yaml:"message,omitempty" json:"message,omitempty"`
	UIContext    map[string]any `yaml:"ui_context,omitempty" json:"ui_context,omitempty"`
	Card         *CardDoc       `yaml:"card,omitempty" json:"card,omitempty"`
}

// CardDoc is a moment's card template.
type CardDoc struct {
	CardID                  string            `yaml:"card_id" json:"card_id"`
	DisplayMode             string            `yaml:"display_mode,omitempty" json:"display_mode,omitempty"`
	Priority                int               `yaml:"priority,omitempty" json:"priority,omitempty"`
	Content                 map[string]any    `yaml:"content,omitempty" json:"content,omitempty"`
	DynamicFields           map[string]string `yaml:"dynamic_fields,omitempty" json:"dynamic_fields,omitempty"`
	DismissWhen             map[string]any    `yaml:"dismiss_when,omitempty" json:"dismiss_when,omitempty"`
	AutoDismissAfterSeconds int               `yaml:"auto_dismiss_after_seconds,omitempty" json:"auto_dismiss_after_seconds,omitempty"`
	ShowOnce                bool              `yaml:"show_once,omitempty" json:"show_once,omitempty"`
}

// ArtifactDoc is one entry under "artifacts".
type ArtifactDoc struct {
	ID       string         `yaml:"id" json:"id"`
	Requires []string       `yaml:"requires,omitempty" json:"requires,omitempty"`
	Optional []string       `yaml:"optional,omitempty" json:"optional,omitempty"`
	Params   map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	NonEmpty []string       `yaml:"non_empty,omitempty" json:"non_empty,omitempty"`
}

// ActionDoc is one entry under "actions".
type ActionDoc struct {
	ID           string         `yaml:"id" json:"id"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	Prerequisite map[string]any `yaml:"prerequisite,omitempty" json:"prerequisite,omitempty"`
}

// StateCardDoc is one entry under "state_cards".
type StateCardDoc struct {
	CardID        string            `yaml:"card_id" json:"card_id"`
	DisplayMode   string            `yaml:"display_mode,omitempty" json:"display_mode,omitempty"`
	Priority      int               `yaml:"priority,omitempty" json:"priority,omitempty"`
	When          map[string]any    `yaml:"when" json:"when"`
	Content       map[string]any    `yaml:"content,omitempty" json:"content,omitempty"`
	DynamicFields map[string]string `yaml:"dynamic_fields,omitempty" json:"dynamic_fields,omitempty"`
}

// ParseYAML decodes a YAML catalog. Unknown fields are rejected so typos
// ("prerequisites:") fail loudly instead of producing always-latent moments.
// It also returns the generic decoded document used for hashing.
func ParseYAML(data []byte) (*Document, map[string]any, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, &ConfigError{Code: ErrParse, Field: "yaml", Message: err.Error()}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, &ConfigError{Code: ErrParse, Field: "yaml", Message: err.Error()}
	}
	return &doc, raw, nil
}

// ParseCUE evaluates a CUE catalog. The document is the value's concrete
// data; definitions and constraints are resolved by CUE first.
func ParseCUE(data []byte, filename string) (*Document, map[string]any, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, nil, formatCUEError(err)
	}

	var doc Document
	if err := v.Decode(&doc); err != nil {
		return nil, nil, formatCUEError(err)
	}
	var raw map[string]any
	if err := v.Decode(&raw); err != nil {
		return nil, nil, formatCUEError(err)
	}
	return &doc, raw, nil
}

// LoadFile reads, parses and compiles a catalog file. The format is chosen
// by extension: .cue for CUE, anything else is read as YAML (JSON included).
func LoadFile(path string) (*ir.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var (
		doc *Document
		raw map[string]any
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		doc, raw, err = ParseCUE(data, path)
	default:
		doc, raw, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	catalog, err := Compile(doc, raw)
	if err != nil {
		return nil, fmt.Errorf("compile catalog %s: %w", path, err)
	}
	return catalog, nil
}
