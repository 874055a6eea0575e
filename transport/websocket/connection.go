package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	maxMessageSize = 4096
)

var (
	errConnectionClosed = errors.New("connection is closed")
	errSlowConsumer     = errors.New("send buffer is full")
)

// connection is one authenticated socket. It implements broadcast.Subscriber;
// Send only enqueues, writePump owns all writes to the socket.
type connection struct {
	logger *slog.Logger

	id     string
	userID string
	conn   *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	matches map[string]struct{}
}

func newConnection(logger *slog.Logger, id, userID string, conn *websocket.Conn, buffer int) *connection {
	return &connection{
		logger: logger.With("connectionID", id, "userID", userID),
		id:     id,
		userID: userID,
		conn:   conn,

		send: make(chan []byte, buffer),
		done: make(chan struct{}),

		matches: make(map[string]struct{}),
	}
}

func (that *connection) ID() string {
	return that.id
}

func (that *connection) Send(event string, payload any) error {
	data, err := json.Marshal(outgoing{Action: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event, err)
	}

	select {
	case <-that.done:
		return errConnectionClosed
	default:
	}

	select {
	case that.send <- data:
		return nil
	default:
		that.close()
		return errSlowConsumer
	}
}

func (that *connection) close() {
	that.closeOnce.Do(func() {
		close(that.done)
		_ = that.conn.Close()
	})
}

func (that *connection) track(matchID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.matches[matchID] = struct{}{}
}

func (that *connection) tracked() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	ids := make([]string, 0, len(that.matches))
	for id := range that.matches {
		ids = append(ids, id)
	}

	return ids
}

func (that *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		that.close()
	}()

	for {
		select {
		case data := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				that.logger.Debug("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-that.done:
			return
		}
	}
}
