package entity

import (
	"slices"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
)

// ConnectionSet holds the live transport connections of one player, in insertion order.
type ConnectionSet []string

func (that ConnectionSet) Contains(connectionID string) bool {
	return slices.Contains(that, connectionID)
}

// Add is idempotent and reports whether the set changed.
func (that *ConnectionSet) Add(connectionID string) bool {
	if connectionID == "" || that.Contains(connectionID) {
		return false
	}

	*that = append(*that, connectionID)

	return true
}

// Remove reports whether the id was present.
func (that *ConnectionSet) Remove(connectionID string) bool {
	idx := slices.Index(*that, connectionID)
	if idx < 0 {
		return false
	}

	*that = slices.Delete(*that, idx, idx+1)

	return true
}

func (that ConnectionSet) IsEmpty() bool {
	return len(that) == 0
}

func (that ConnectionSet) Len() int {
	return len(that)
}

func (that ConnectionSet) Clone() ConnectionSet {
	if that == nil {
		return nil
	}

	return slices.Clone(that)
}

func (that *Match) connectionsOf(playerID string) *ConnectionSet {
	switch {
	case playerID == "":
		return nil
	case playerID == that.Player1ID:
		return &that.Player1Connections
	case playerID == that.Player2ID:
		return &that.Player2Connections
	default:
		return nil
	}
}

// Connect registers a live connection for a participant. A finished match is immutable,
// so connecting to it changes nothing.
func (that *Match) Connect(playerID, connectionID string) (bool, error) {
	set := that.connectionsOf(playerID)
	if set == nil {
		return false, apperror.ErrNotParticipant
	}

	if that.IsOver() {
		return false, nil
	}

	return set.Add(connectionID), nil
}

// Disconnect drops a live connection. It reports whether the connection was tracked.
func (that *Match) Disconnect(playerID, connectionID string) bool {
	set := that.connectionsOf(playerID)
	if set == nil || that.IsOver() {
		return false
	}

	return set.Remove(connectionID)
}

// HasConnections reports whether any participant still holds a live connection.
func (that *Match) HasConnections() bool {
	return !that.Player1Connections.IsEmpty() || !that.Player2Connections.IsEmpty()
}

// ShouldAbandon is true for an active, undecided match nobody is connected to anymore.
func (that *Match) ShouldAbandon() bool {
	return that.IsActive() && that.Result == nil && !that.HasConnections()
}

// Abandon ends the match as a draw without a winning line.
func (that *Match) Abandon() {
	that.Result = &Result{Draw: true, Abandoned: true}
	that.Status = StatusOver
}
