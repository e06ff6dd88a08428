package ir

import (
	"github.com/roach88/moments/internal/condition"
)

// MomentDefinition is a named, condition-gated unit of behavior.
// A moment without a prerequisite is always latent and never auto-fires.
type MomentDefinition struct {
	ID string `json:"id"`

	Prerequisite    condition.Expr `json:"-"`
	RawPrerequisite map[string]any `json:"prerequisite,omitempty"`

	ArtifactID string         `json:"artifact,omitempty"` // Optional: artifact produced on firing
	Message    string         `json:"message,omitempty"`  // Placeholders: {dotted.path}
	UIContext  map[string]any `json:"ui_context,omitempty"`
	Card       *CardTemplate  `json:"card,omitempty"`
}

// CardTemplate describes the card a moment creates when it fires.
type CardTemplate struct {
	CardID      string         `json:"card_id"`
	DisplayMode DisplayMode    `json:"display_mode"`
	Priority    int            `json:"priority"`
	Content     map[string]any `json:"content,omitempty"`

	// DynamicFields maps a content field to the context path it is read from.
	DynamicFields map[string]string `json:"dynamic_fields,omitempty"`

	DismissWhen    condition.Expr `json:"-"`
	RawDismissWhen map[string]any `json:"dismiss_when,omitempty"`

	AutoDismissAfterSeconds int  `json:"auto_dismiss_after_seconds,omitempty"`
	ShowOnce                bool `json:"show_once,omitempty"`
}

// ArtifactDefinition declares a generated document and its dependencies.
type ArtifactDefinition struct {
	ID string `json:"id"`

	// Requires lists artifacts that must be ready before generation starts.
	Requires []string `json:"requires,omitempty"`
	// Optional lists artifacts passed to the generator when ready.
	Optional []string `json:"optional,omitempty"`

	Params     map[string]any     `json:"params,omitempty"`
	Validation ArtifactValidation `json:"validation,omitempty"`
}

// ArtifactValidation is the structural check a ready artifact must pass.
type ArtifactValidation struct {
	// NonEmpty lists content paths that must hold a non-empty list, map or string.
	NonEmpty []string `json:"non_empty,omitempty"`
}

// ActionDefinition is an action whose feasibility callers can query.
type ActionDefinition struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`

	Prerequisite    condition.Expr `json:"-"`
	RawPrerequisite map[string]any `json:"prerequisite,omitempty"`
}

// StateCardDefinition is a persistent card shown while its condition holds.
// State cards are re-evaluated every render rather than created by firings.
type StateCardDefinition struct {
	CardID      string      `json:"card_id"`
	DisplayMode DisplayMode `json:"display_mode"`
	Priority    int         `json:"priority"`

	When    condition.Expr `json:"-"`
	RawWhen map[string]any `json:"when,omitempty"`

	Content       map[string]any    `json:"content,omitempty"`
	DynamicFields map[string]string `json:"dynamic_fields,omitempty"`
}

// Catalog is the immutable set of definitions loaded at startup.
// Slices keep declaration order; lookups go through the index.
type Catalog struct {
	Moments    []MomentDefinition    `json:"moments"`
	Artifacts  []ArtifactDefinition  `json:"artifacts,omitempty"`
	Actions    []ActionDefinition    `json:"actions,omitempty"`
	StateCards []StateCardDefinition `json:"state_cards,omitempty"`

	// Hash identifies the catalog content; recorded on persisted artifacts.
	Hash string `json:"hash"`

	moments   map[string]int
	artifacts map[string]int
	actions   map[string]int
}

// NewCatalog builds a catalog and its lookup index. Uniqueness of ids is the
// compiler's job; on duplicates the first declaration wins here.
func NewCatalog(moments []MomentDefinition, artifacts []ArtifactDefinition, actions []ActionDefinition, stateCards []StateCardDefinition, hash string) *Catalog {
	c := &Catalog{
		Moments:    moments,
		Artifacts:  artifacts,
		Actions:    actions,
		StateCards: stateCards,
		Hash:       hash,
		moments:    make(map[string]int, len(moments)),
		artifacts:  make(map[string]int, len(artifacts)),
		actions:    make(map[string]int, len(actions)),
	}
	for i, m := range moments {
		if _, dup := c.moments[m.ID]; !dup {
			c.moments[m.ID] = i
		}
	}
	for i, a := range artifacts {
		if _, dup := c.artifacts[a.ID]; !dup {
			c.artifacts[a.ID] = i
		}
	}
	for i, a := range actions {
		if _, dup := c.actions[a.ID]; !dup {
			c.actions[a.ID] = i
		}
	}
	return c
}

// Moment returns the moment with the given id.
func (c *Catalog) Moment(id string) (*MomentDefinition, bool) {
	i, ok := c.moments[id]
	if !ok {
		return nil, false
	}
	return &c.Moments[i], true
}

// Artifact returns the artifact definition with the given id.
func (c *Catalog) Artifact(id string) (*ArtifactDefinition, bool) {
	i, ok := c.artifacts[id]
	if !ok {
		return nil, false
	}
	return &c.Artifacts[i], true
}

// Action returns the action with the given id.
func (c *Catalog) Action(id string) (*ActionDefinition, bool) {
	i, ok := c.actions[id]
	if !ok {
		return nil, false
	}
	return &c.Actions[i], true
}
