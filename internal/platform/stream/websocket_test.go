package stream

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func dialWS(t *testing.T, hub *Hub) *gorillawebsocket.Conn {
	t.Helper()
	e := echo.New()
	NewWSHandler(hub).RegisterRoutes(e.Group("/ws"))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/patients"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSMessage(t *testing.T, conn *gorillawebsocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return msg
}

func TestWS_HeartbeatThenUpdates(t *testing.T) {
	hub := NewHub(200*time.Millisecond, time.Hour, zerolog.New(os.Stderr))
	defer hub.Close()

	conn := dialWS(t, hub)

	msg := readWSMessage(t, conn)
	if msg.Event != FrameHeartbeat {
		t.Fatalf("first message should be heartbeat, got %q", msg.Event)
	}

	hub.Broadcast(map[string]string{"patientId": "PAC003"})

	msg = readWSMessage(t, conn)
	if msg.Event != FramePatientUpdate {
		t.Errorf("expected patient-update, got %q", msg.Event)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		t.Fatalf("bad event body: %v", err)
	}
	if body["patientId"] != "PAC003" {
		t.Errorf("wrong event body: %v", body)
	}
}

func TestWS_CloseDeregistersSubscriber(t *testing.T) {
	hub := NewHub(200*time.Millisecond, time.Hour, zerolog.New(os.Stderr))
	defer hub.Close()

	conn := dialWS(t, hub)
	readWSMessage(t, conn) // heartbeat: subscription established

	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("expected subscriber to be deregistered after close, got %d", hub.SubscriberCount())
	}
}
