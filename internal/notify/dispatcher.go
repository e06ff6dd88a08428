package notify

import (
	"log/slog"
	"time"

	"github.com/roach88/moments/internal/ir"
)

// Dispatcher receives state changes from the engine. Implementations must
// return quickly and must not call back into the engine.
type Dispatcher interface {
	NotifyArtifactUpdated(subjectID, artifactID string, status ir.ArtifactStatus, content map[string]any)
	NotifyCardsUpdated(subjectID string, cards []ir.ActiveCard)
}

// EventType distinguishes notification kinds.
type EventType string

const (
	EventArtifact EventType = "artifact"
	EventCards    EventType = "cards"
)

// Event is one notification as delivered to subscribers.
type Event struct {
	Type       EventType         `json:"type"`
	SubjectID  string            `json:"subject_id"`
	ArtifactID string            `json:"artifact_id,omitempty"`
	Status     ir.ArtifactStatus `json:"status,omitempty"`
	Content    map[string]any    `json:"content,omitempty"`
	Cards      []ir.ActiveCard   `json:"cards,omitempty"`
	At         time.Time         `json:"at"`
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifyArtifactUpdated(string, string, ir.ArtifactStatus, map[string]any) {}
func (Nop) NotifyCardsUpdated(string, []ir.ActiveCard) {}

// LogDispatcher logs notifications at debug level.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d LogDispatcher) NotifyArtifactUpdated(subjectID, artifactID string, status ir.ArtifactStatus, _ map[string]any) {
	d.log().Debug("artifact updated",
		"subject_id", subjectID,
		"artifact_id", artifactID,
		"status", status)
}

func (d LogDispatcher) NotifyCardsUpdated(subjectID string, cards []ir.ActiveCard) {
	d.log().Debug("cards updated",
		"subject_id", subjectID,
		"visible", len(cards))
}

// Multi forwards every notification to each dispatcher in order.
type Multi []Dispatcher

func (m Multi) NotifyArtifactUpdated(subjectID, artifactID string, status ir.ArtifactStatus, content map[string]any) {
	for _, d := range m {
		d.NotifyArtifactUpdated(subjectID, artifactID, status, content)
	}
}

func (m Multi) NotifyCardsUpdated(subjectID string, cards []ir.ActiveCard) {
	for _, d := range m {
		d.NotifyCardsUpdated(subjectID, cards)
	}
}
