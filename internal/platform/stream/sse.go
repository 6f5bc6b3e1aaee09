package stream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SSEHandler serves the hub's frames over Server-Sent Events. Each frame is
// written as a named SSE event with a JSON data line, matching what
// EventSource clients expect.
type SSEHandler struct {
	hub *Hub
}

// NewSSEHandler creates a handler bound to the given Hub.
func NewSSEHandler(hub *Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// RegisterRoutes registers the SSE endpoint on the provided Echo group.
func (h *SSEHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients/stream", h.HandleStream)
}

// HandleStream subscribes the caller to the hub and streams frames until the
// client disconnects, the session is deregistered, or the idle ceiling is
// reached. The first frame on the wire is always the hub's heartbeat.
func (h *SSEHandler) HandleStream(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case frame := <-sub.Frames():
			if err := writeSSEFrame(res, frame); err != nil {
				// Transport write failure only affects this subscriber.
				return nil
			}
			res.Flush()
		}
	}
}

func writeSSEFrame(w io.Writer, frame Frame) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Name, frame.Data)
	return err
}
