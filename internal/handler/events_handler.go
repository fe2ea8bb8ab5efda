package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/port"

	"go.uber.org/zap"
)

const (
	eventsBuffer     = 32
	eventsKeepAlive  = 25 * time.Second
	leadChangedEvent = "lead-changed"
)

// eventsHandler streams "lead changed" signals as server-sent events, one
// hub subscription per connection. Clients re-read the lead on each event.
func eventsHandler(events port.ChangeSubscriber, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok || events == nil {
			writeError(w, http.StatusNotImplemented, "streaming unsupported")
			return
		}

		ch, unsubscribe := events.Subscribe(eventsBuffer)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		actor := ActorFromContext(r.Context())
		logger.Debug("events: subscriber connected", zap.String("actor", actor))
		defer logger.Debug("events: subscriber disconnected", zap.String("actor", actor))

		keepAlive := time.NewTicker(eventsKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case change, open := <-ch:
				if !open {
					return
				}
				payload, err := json.Marshal(change)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", leadChangedEvent, payload)
				flusher.Flush()
			}
		}
	}
}
