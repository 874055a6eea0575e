package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrAuth            = errors.New("authentication failed")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid match state")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrIllegalMove     = errors.New("illegal move")
	ErrAlreadyInMatch  = errors.New("player already participates in a match")
	ErrSelfJoin        = errors.New("player can't join own match")
	ErrJoinCodeInUse   = errors.New("join code is already in use")
	ErrInvalidJoinCode = errors.New("join code is empty after normalization")
	ErrPersistence     = errors.New("match store unavailable")
)

// Narrower errors keep their family, so errors.Is works against both.
var (
	ErrMatchNotFound   = fmt.Errorf("match %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrMatchNotActive  = fmt.Errorf("match is not active: %w", ErrInvalidState)
	ErrMatchNotWaiting = fmt.Errorf("match is not waiting for a player: %w", ErrInvalidState)
	ErrNotParticipant  = fmt.Errorf("player is not a participant: %w", ErrNotYourTurn)
	ErrCellOccupied    = fmt.Errorf("cell is already occupied: %w", ErrIllegalMove)
	ErrInvalidCell     = fmt.Errorf("invalid cell index: %w", ErrIllegalMove)
)
