package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeSSE streams a subject's notifications as server-sent events until the
// client disconnects or the subscription is closed.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, subjectID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cancel := h.Subscribe(subjectID)
	defer cancel()

	// Comment line so clients see the stream open before the first event.
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			h.sendSSEEvent(w, flusher, e)
		}
	}
}

func (h *Hub) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	flusher.Flush()
}
