package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the bidirectional message link for one call. Read blocks
// for the next inbound envelope; Write marshals one outbound message.
// Write must be safe for concurrent use, since the pacer and the ingest
// loop both send on it.
type Transport interface {
	Read() (*Envelope, error)
	Write(v any) error
	Close() error
}

// wsTransport adapts a gorilla websocket connection. Each Read arms a
// fresh deadline; a peer that goes quiet longer than readTimeout ends
// the call rather than hanging it.
type wsTransport struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	writeMu sync.Mutex
}

// NewWSTransport wraps an upgraded websocket connection.
func NewWSTransport(conn *websocket.Conn, readTimeout time.Duration) Transport {
	return &wsTransport{conn: conn, readTimeout: readTimeout}
}

func (t *wsTransport) Read() (*Envelope, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read media stream: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode media stream message: %w", err)
	}
	return &env, nil
}

func (t *wsTransport) Write(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write media stream: %w", err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
