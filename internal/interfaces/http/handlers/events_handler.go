package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/eventbus"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
)

// EventsHandler serves the per-run SSE subscription.
type EventsHandler struct {
	store  *persistence.Store
	bus    *eventbus.Bus
	logger *zap.Logger
}

func NewEventsHandler(store *persistence.Store, bus *eventbus.Bus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{store: store, bus: bus, logger: logger}
}

// Subscribe attaches a long-lived SSE stream to a run. The current run
// status is echoed immediately; everything published afterwards is forwarded
// until the client disconnects or the bus shuts down. Only stream-enabled
// runs accept subscribers.
func (h *EventsHandler) Subscribe(c *gin.Context) {
	runID := c.Param("id")

	run, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !run.Stream {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run does not have streaming enabled"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)

	sub := h.bus.Subscribe(runID)
	defer h.bus.Unsubscribe(sub)

	h.logger.Info("SSE subscriber attached", zap.String("run_id", runID))

	// Echo current status so late subscribers know where the run stands.
	writeSSE(c, flusher, entity.RunEvent{
		Type:   entity.EventRunStatus,
		RunID:  runID,
		Status: string(run.Status),
	})

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE subscriber disconnected", zap.String("run_id", runID))
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			writeSSE(c, flusher, event)
		}
	}
}

func writeSSE(c *gin.Context, flusher http.Flusher, event entity.RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, data)
	if flusher != nil {
		flusher.Flush()
	}
}
