// Package broadcast fans match updates out to the connections subscribed to a match room.
package broadcast

import (
	"log/slog"
	"sync"
)

// Subscriber is one transport connection. Send must not block on a slow peer.
type Subscriber interface {
	ID() string
	Send(event string, payload any) error
}

type Gateway struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber
}

func New(logger *slog.Logger) *Gateway {
	return &Gateway{
		logger: logger.With("component", "broadcast"),
		rooms:  make(map[string]map[string]Subscriber),
	}
}

// Subscribe adds the subscriber to the match room. Subscribing twice is a no-op.
func (that *Gateway) Subscribe(matchID string, sub Subscriber) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[matchID]
	if !ok {
		room = make(map[string]Subscriber)
		that.rooms[matchID] = room
	}

	room[sub.ID()] = sub
}

func (that *Gateway) Unsubscribe(matchID, subscriberID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[matchID]
	if !ok {
		return
	}

	delete(room, subscriberID)

	if len(room) == 0 {
		delete(that.rooms, matchID)
	}
}

func (that *Gateway) IsSubscribed(matchID, subscriberID string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	_, ok := that.rooms[matchID][subscriberID]

	return ok
}

func (that *Gateway) RoomSize(matchID string) int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms[matchID])
}

// Publish delivers payload to every subscriber of the room and returns how many accepted it.
// A failing subscriber is logged and skipped.
func (that *Gateway) Publish(matchID, event string, payload any) int {
	log := that.logger.With("method", "Publish", "matchID", matchID, "event", event)

	that.mu.RLock()
	subscribers := make([]Subscriber, 0, len(that.rooms[matchID]))
	for _, sub := range that.rooms[matchID] {
		subscribers = append(subscribers, sub)
	}
	that.mu.RUnlock()

	delivered := 0
	for _, sub := range subscribers {
		if err := sub.Send(event, payload); err != nil {
			log.Warn("failed to deliver update", "subscriberID", sub.ID(), "error", err)
			continue
		}
		delivered++
	}

	log.Debug("update published", "delivered", delivered, "subscribers", len(subscribers))

	return delivered
}
