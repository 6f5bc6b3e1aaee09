package stream

import (
	"encoding/json"
	"net/http"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// wsMessage is the wire envelope for WebSocket clients: the frame name plus
// the JSON event body, mirroring the SSE named-event shape.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSHandler serves the hub's frames over a WebSocket connection, as an
// alternative transport to SSE carrying the identical event sequence.
type WSHandler struct {
	hub *Hub
}

// NewWSHandler creates a handler bound to the given Hub.
func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *WSHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients", h.HandleConnect)
}

// HandleConnect upgrades the HTTP connection, registers a subscriber with the
// hub, and starts read/write pumps.
func (h *WSHandler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sub := h.hub.Subscribe()

	go h.writePump(sub, ws)
	go h.readPump(sub, ws)

	return nil
}

// writePump drains the subscriber's frame channel onto the connection.
func (h *WSHandler) writePump(sub *Subscriber, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for {
		select {
		case <-sub.Done():
			return
		case frame := <-sub.Frames():
			payload, err := json.Marshal(wsMessage{Event: frame.Name, Data: frame.Data})
			if err != nil {
				continue
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, payload); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		}
	}
}

// readPump consumes inbound messages. Clients send nothing meaningful, but
// each read counts as transport activity and a read error means the client
// is gone.
func (h *WSHandler) readPump(sub *Subscriber, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unsubscribe(sub)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		sub.Touch()
	}
}
