package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/moments/internal/ir"
)

// timeLayout keeps sub-second precision and sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalContent converts artifact content to canonical JSON TEXT.
// A nil map is stored as NULL.
func marshalContent(content map[string]any) (any, error) {
	if content == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return string(data), nil
}

func unmarshalContent(data *string) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(*data), &content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	return content, nil
}

// marshalCard stores the whole card; the compiled dismiss_when expression is
// rebuilt from its raw form on restore.
func marshalCard(c ir.ActiveCard) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal card %s: %w", c.InstanceID, err)
	}
	return string(data), nil
}

func unmarshalCard(data string) (ir.ActiveCard, error) {
	var c ir.ActiveCard
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return ir.ActiveCard{}, fmt.Errorf("unmarshal card: %w", err)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
