package ir

import (
	"time"

	"github.com/roach88/moments/internal/condition"
)

// DisplayMode tells the UI how to present a card.
type DisplayMode string

const (
	DisplayInline DisplayMode = "inline"
	DisplayBanner DisplayMode = "banner"
	DisplayToast  DisplayMode = "toast"
	DisplayModal  DisplayMode = "modal"
)

// ValidDisplayModes defines allowed display modes.
var ValidDisplayModes = map[DisplayMode]bool{
	DisplayInline: true,
	DisplayBanner: true,
	DisplayToast:  true,
	DisplayModal:  true,
}

// DismissCause records why a card was dismissed.
type DismissCause string

const (
	DismissCondition DismissCause = "condition"
	DismissUser      DismissCause = "user"
	DismissAction    DismissCause = "action"
	DismissTimeout   DismissCause = "timeout"
)

// CardSource distinguishes one-shot event cards from persistent state cards.
type CardSource string

const (
	SourceEvent CardSource = "event"
	SourceState CardSource = "state"
)

// ActiveCard is a rendered card instance owned by one subject.
//
// Event cards are created once per firing and never resurrected once
// dismissed. State cards are rebuilt from the catalog on every render.
type ActiveCard struct {
	CardID          string      `json:"card_id"`
	InstanceID      string      `json:"instance_id"`
	CreatedByMoment string      `json:"created_by_moment,omitempty"`
	Source          CardSource  `json:"source"`
	DisplayMode     DisplayMode `json:"display_mode"`
	Priority        int         `json:"priority"`

	Content       map[string]any    `json:"content,omitempty"`
	DynamicFields map[string]string `json:"dynamic_fields,omitempty"`

	DismissWhen             condition.Expr `json:"-"`
	RawDismissWhen          map[string]any `json:"dismiss_when,omitempty"`
	AutoDismissAfterSeconds int            `json:"auto_dismiss_after_seconds,omitempty"`

	CreatedAt    time.Time    `json:"created_at"`
	Dismissed    bool         `json:"dismissed"`
	DismissedAt  *time.Time   `json:"dismissed_at,omitempty"`
	DismissCause DismissCause `json:"dismiss_cause,omitempty"`
}

// Clone returns a copy that shares no mutable maps with c.
func (c *ActiveCard) Clone() ActiveCard {
	out := *c
	out.Content = cloneMap(c.Content)
	if c.DismissedAt != nil {
		t := *c.DismissedAt
		out.DismissedAt = &t
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
