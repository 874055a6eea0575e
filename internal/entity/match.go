package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
)

const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusOver    = "over"

	MarkX = "X"
	MarkO = "O"

	EmptyCell = ""

	BoardSize = 9
)

// Match is the full state of one game between two players.
type Match struct {
	ID       string `json:"id"`
	JoinCode string `json:"join_code,omitempty"`
	Status   string `json:"status"`

	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id,omitempty"`

	Board     [BoardSize]string `json:"board"`
	MoveCount int               `json:"move_count"`

	Player1Connections ConnectionSet `json:"player1_connections"`
	Player2Connections ConnectionSet `json:"player2_connections"`

	Result *Result `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is set only once the match is over. Exactly one of WinnerID or Draw holds.
type Result struct {
	WinnerID    string `json:"winner_id,omitempty"`
	LoserID     string `json:"loser_id,omitempty"`
	Draw        bool   `json:"draw"`
	Abandoned   bool   `json:"abandoned,omitempty"`
	WinningLine []int  `json:"winning_line,omitempty"`
}

func NewMatch(id, creatorID, joinCode string) *Match {
	return &Match{
		ID:        id,
		JoinCode:  joinCode,
		Status:    StatusWaiting,
		Player1ID: creatorID,
	}
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) IsActive() bool {
	return that.Status == StatusActive
}

func (that *Match) IsOver() bool {
	return that.Status == StatusOver
}

// ConfirmActive reports whether moves may be applied to the match.
func (that *Match) ConfirmActive() error {
	switch that.Status {
	case StatusActive:
		return nil
	case StatusWaiting, StatusOver:
		return apperror.ErrMatchNotActive
	default:
		return fmt.Errorf("%w: unknown status %q", apperror.ErrInvalidState, that.Status)
	}
}

// Join seats the second player and starts the match. Player1 moves first.
func (that *Match) Join(playerID string) error {
	if !that.IsWaiting() {
		return apperror.ErrMatchNotWaiting
	}

	if playerID == that.Player1ID {
		return apperror.ErrSelfJoin
	}

	that.Player2ID = playerID
	that.Status = StatusActive

	return nil
}

func (that *Match) IsParticipant(playerID string) bool {
	if playerID == "" {
		return false
	}

	return playerID == that.Player1ID || playerID == that.Player2ID
}

// MarkOf returns the mark the player places, or EmptyCell for outsiders.
func (that *Match) MarkOf(playerID string) string {
	switch {
	case playerID == "":
		return EmptyCell
	case playerID == that.Player1ID:
		return MarkX
	case playerID == that.Player2ID:
		return MarkO
	default:
		return EmptyCell
	}
}

func (that *Match) OpponentOf(playerID string) string {
	if playerID == that.Player1ID {
		return that.Player2ID
	}

	return that.Player1ID
}

// NextPlayerID is the participant whose turn it is, empty unless the match is active.
func (that *Match) NextPlayerID() string {
	if !that.IsActive() {
		return ""
	}

	if that.MoveCount%2 == 0 {
		return that.Player1ID
	}

	return that.Player2ID
}

func (that *Match) Winner() string {
	if that.Result == nil {
		return ""
	}

	return that.Result.WinnerID
}

func (that *Match) IsDraw() bool {
	return that.Result != nil && that.Result.Draw
}

func (that *Match) Win(winnerID string, line [3]int) {
	that.Result = &Result{
		WinnerID:    winnerID,
		LoserID:     that.OpponentOf(winnerID),
		WinningLine: []int{line[0], line[1], line[2]},
	}
	that.Status = StatusOver
}

func (that *Match) Tie() {
	that.Result = &Result{Draw: true}
	that.Status = StatusOver
}

// Clone returns a deep copy, so a mutation can be discarded when it fails to persist.
func (that *Match) Clone() *Match {
	clone := *that

	clone.Player1Connections = that.Player1Connections.Clone()
	clone.Player2Connections = that.Player2Connections.Clone()

	if that.Result != nil {
		result := *that.Result
		if that.Result.WinningLine != nil {
			result.WinningLine = append([]int(nil), that.Result.WinningLine...)
		}
		clone.Result = &result
	}

	return &clone
}
