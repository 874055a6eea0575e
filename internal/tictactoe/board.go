package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

// WinCombos is scanned in order, the first complete line wins.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// DetectOutcome returns the first line holding three equal marks.
func DetectOutcome(board [entity.BoardSize]string) ([3]int, bool) {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return combo, true
		}
	}

	return [3]int{}, false
}

func IsFull(board [entity.BoardSize]string) bool {
	for _, cell := range board {
		if cell == entity.EmptyCell {
			return false
		}
	}

	return true
}

// MarkFor returns the mark placed by the move following moveCount accepted moves.
func MarkFor(moveCount int) string {
	if moveCount%2 == 0 {
		return entity.MarkX
	}

	return entity.MarkO
}

// ValidateMove - checks if the move is legal without touching the match.
func ValidateMove(match *entity.Match, playerID string, cell int) error {
	if err := match.ConfirmActive(); err != nil {
		return err
	}

	mark := match.MarkOf(playerID)
	if mark == entity.EmptyCell {
		return apperror.ErrNotParticipant
	}

	if cell < 0 || cell >= len(match.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if mark != MarkFor(match.MoveCount) {
		return apperror.ErrNotYourTurn
	}

	if match.Board[cell] != entity.EmptyCell {
		return fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell)
	}

	return nil
}

// MakeTurn places the mover's mark and settles the outcome. An invalid move leaves the match as it was.
func MakeTurn(match *entity.Match, playerID string, cell int) error {
	if err := ValidateMove(match, playerID, cell); err != nil {
		return err
	}

	match.Board[cell] = MarkFor(match.MoveCount)
	match.MoveCount++

	updateMatchStatus(match, playerID)

	return nil
}

// updateMatchStatus - checks the match status after a move.
func updateMatchStatus(match *entity.Match, moverID string) {
	if line, ok := DetectOutcome(match.Board); ok {
		match.Win(moverID, line)
		return
	}

	if IsFull(match.Board) {
		match.Tie()
	}
}
