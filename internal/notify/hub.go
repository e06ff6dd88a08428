package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/moments/internal/ir"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Hub fans notifications out to subscribers of each subject.
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event and the drop is counted. Clients recover by re-reading state on
// their next turn.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	now    func() time.Time
	logger *slog.Logger

	dropped atomic.Int64
}

type subscription struct {
	ch     chan Event
	closed bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger sets the logger for dropped events.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithNow sets the timestamp source for events.
func WithNow(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: DefaultBuffer,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers for a subject's events. The returned cancel function
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(subjectID string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[subjectID] == nil {
		h.subs[subjectID] = make(map[*subscription]struct{})
	}
	h.subs[subjectID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		delete(h.subs[subjectID], sub)
		if len(h.subs[subjectID]) == 0 {
			delete(h.subs, subjectID)
		}
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Subscribers returns the number of active subscribers for a subject.
func (h *Hub) Subscribers(subjectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subjectID])
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[e.SubjectID] {
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
			h.logger.Debug("notification dropped for slow subscriber",
				"subject_id", e.SubjectID,
				"type", e.Type)
		}
	}
}

// NotifyArtifactUpdated implements Dispatcher.
func (h *Hub) NotifyArtifactUpdated(subjectID, artifactID string, status ir.ArtifactStatus, content map[string]any) {
	h.publish(Event{
		Type:       EventArtifact,
		SubjectID:  subjectID,
		ArtifactID: artifactID,
		Status:     status,
		Content:    content,
		At:         h.now(),
	})
}

// NotifyCardsUpdated implements Dispatcher.
func (h *Hub) NotifyCardsUpdated(subjectID string, cards []ir.ActiveCard) {
	h.publish(Event{
		Type:      EventCards,
		SubjectID: subjectID,
		Cards:     cards,
		At:        h.now(),
	})
}
