package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

// Stream maintains the exchange websocket and pushes fill and disconnect
// events into the engine's queue. Reconnection is not attempted here: a
// drop produces a disconnect event and the engine drives reconciliation
// before the stream is reopened.
type Stream struct {
	url    string
	apiKey string
	queue  *events.Queue
}

func NewStream(url, apiKey string, queue *events.Queue) *Stream {
	return &Stream{url: url, apiKey: apiKey, queue: queue}
}

type streamMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// Run connects and reads until the connection drops or ctx is cancelled.
// Every exit except cancellation pushes a disconnect event.
func (s *Stream) Run(ctx context.Context) error {
	header := map[string][]string{"Authorization": {"Bearer " + s.apiKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		s.pushDisconnect("dial: " + err.Error())
		return err
	}
	defer conn.Close()
	telemetry.Plainf("exchange stream: connected %s", s.url)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.pushDisconnect("read: " + err.Error())
			return err
		}
		s.handle(data)
	}
}

func (s *Stream) handle(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Warnf("exchange stream: bad frame: %v", err)
		return
	}

	switch msg.Type {
	case "fill":
		var f events.Fill
		if err := json.Unmarshal(msg.Msg, &f); err != nil {
			telemetry.Warnf("exchange stream: bad fill: %v", err)
			return
		}
		s.queue.Push(events.Event{
			Type:      events.EventFill,
			GameID:    f.GameID,
			Timestamp: time.Now(),
			Payload:   f,
		})
	case "heartbeat":
		// Keepalive only.
	default:
		telemetry.Debugf("exchange stream: ignoring frame type %q", msg.Type)
	}
}

func (s *Stream) pushDisconnect(reason string) {
	s.queue.Push(events.Event{
		Type:      events.EventDisconnect,
		Timestamp: time.Now(),
		Payload:   events.Disconnect{Reason: reason},
	})
}
