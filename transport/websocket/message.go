package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

const (
	actionCreate = "create"
	actionJoin   = "join"
	actionMove   = "move"
	actionStats  = "stats"
	actionActive = "active"
	actionError  = "error"
)

// Message is the envelope of every frame exchanged with a client.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

type createRequest struct {
	Code string `json:"code,omitempty"`
}

type joinRequest struct {
	MatchID string `json:"matchId,omitempty"`
	Code    string `json:"code,omitempty"`
}

type moveRequest struct {
	MatchID string `json:"matchId"`
	Index   *int   `json:"index"`
}

type statsRequest struct {
	UserID string `json:"userId,omitempty"`
}

type activeResponse struct {
	Match *entity.Match `json:"match"`
}

type errorResponse struct {
	Request string `json:"request"`
	Error   string `json:"error"`
}
