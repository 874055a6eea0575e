package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
)

func decode(msg *Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return nil
}

func (that *Server) handleCreate(ctx context.Context, conn *connection, msg *Message) error {
	var req createRequest
	if err := decode(msg, &req); err != nil {
		that.sendErrorResponse(conn, msg.Action, "malformed payload")
		return err
	}

	match, err := that.uMatch.Create(ctx, conn.userID, req.Code)
	if err != nil {
		that.sendError(conn, msg.Action, err)
		return fmt.Errorf("failed to create match: %w", err)
	}

	return that.attach(ctx, conn, msg.Action, match.ID)
}

func (that *Server) handleJoin(ctx context.Context, conn *connection, msg *Message) error {
	var req joinRequest
	if err := decode(msg, &req); err != nil {
		that.sendErrorResponse(conn, msg.Action, "malformed payload")
		return err
	}

	ref := req.MatchID
	if ref == "" {
		ref = req.Code
	}

	if ref == "" {
		that.sendErrorResponse(conn, msg.Action, "matchId or code is required")
		return nil
	}

	match, err := that.uMatch.Join(ctx, ref, conn.userID)
	if err != nil {
		// A participant opening another tab rejoins through Connect.
		if that.isRejoin(ctx, conn, req.MatchID, err) {
			return that.attach(ctx, conn, msg.Action, req.MatchID)
		}

		that.sendError(conn, msg.Action, err)
		return fmt.Errorf("failed to join match: %w", err)
	}

	return that.attach(ctx, conn, msg.Action, match.ID)
}

func (that *Server) isRejoin(ctx context.Context, conn *connection, matchID string, joinErr error) bool {
	if matchID == "" || (!errors.Is(joinErr, apperror.ErrInvalidState) && !errors.Is(joinErr, apperror.ErrSelfJoin)) {
		return false
	}

	match, err := that.uMatch.Snapshot(ctx, matchID)
	if err != nil {
		return false
	}

	return match.IsParticipant(conn.userID)
}

func (that *Server) handleMove(ctx context.Context, conn *connection, msg *Message) error {
	var req moveRequest
	if err := decode(msg, &req); err != nil {
		that.sendErrorResponse(conn, msg.Action, "malformed payload")
		return err
	}

	if req.MatchID == "" || req.Index == nil {
		that.sendErrorResponse(conn, msg.Action, "matchId and index are required")
		return nil
	}

	_, err := that.uMatch.ApplyMove(ctx, req.MatchID, conn.userID, *req.Index)
	if errors.Is(err, apperror.ErrMatchNotActive) {
		conn.logger.Debug("ignored move on inactive match", "matchID", req.MatchID)
		return nil
	}

	if err != nil {
		that.sendError(conn, msg.Action, err)
		return fmt.Errorf("failed to apply move: %w", err)
	}

	return nil
}

func (that *Server) handleStats(ctx context.Context, conn *connection, msg *Message) error {
	var req statsRequest
	if err := decode(msg, &req); err != nil {
		that.sendErrorResponse(conn, msg.Action, "malformed payload")
		return err
	}

	userID := req.UserID
	if userID == "" {
		userID = conn.userID
	}

	stats, err := that.uMatch.GetStats(ctx, userID)
	if err != nil {
		that.sendError(conn, msg.Action, err)
		return fmt.Errorf("failed to get stats: %w", err)
	}

	return conn.Send(actionStats, stats)
}

// handleActive replies with the caller's open match and resumes it on this socket.
func (that *Server) handleActive(ctx context.Context, conn *connection, msg *Message) error {
	match, err := that.uMatch.ActiveFor(ctx, conn.userID)
	if err != nil {
		that.sendError(conn, msg.Action, err)
		return fmt.Errorf("failed to find active match: %w", err)
	}

	if err = conn.Send(actionActive, activeResponse{Match: match}); err != nil {
		return err
	}

	if match == nil {
		return nil
	}

	return that.attach(ctx, conn, msg.Action, match.ID)
}

// attach connects the socket to the match room. The room then receives game_update.
func (that *Server) attach(ctx context.Context, conn *connection, action, matchID string) error {
	if _, err := that.uMatch.Connect(ctx, matchID, conn.userID, conn); err != nil {
		that.sendError(conn, action, err)
		return fmt.Errorf("failed to connect to match %s: %w", matchID, err)
	}

	conn.track(matchID)

	return nil
}

func (that *Server) sendError(conn *connection, action string, err error) {
	that.sendErrorResponse(conn, action, errorMessage(err))
}

func (that *Server) sendErrorResponse(conn *connection, action, errorMsg string) {
	if err := conn.Send(actionError, errorResponse{Request: action, Error: errorMsg}); err != nil {
		conn.logger.Debug("failed to send error response", "error", err)
	}
}

// errorMessage hides store internals from clients.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrPersistence):
		return apperror.ErrPersistence.Error()
	case errors.Is(err, apperror.ErrMatchNotFound):
		return apperror.ErrMatchNotFound.Error()
	case errors.Is(err, apperror.ErrUserNotFound):
		return apperror.ErrUserNotFound.Error()
	case errors.Is(err, apperror.ErrMatchNotWaiting):
		return apperror.ErrMatchNotWaiting.Error()
	case errors.Is(err, apperror.ErrMatchNotActive):
		return apperror.ErrMatchNotActive.Error()
	case errors.Is(err, apperror.ErrNotParticipant):
		return apperror.ErrNotParticipant.Error()
	case errors.Is(err, apperror.ErrNotYourTurn):
		return apperror.ErrNotYourTurn.Error()
	case errors.Is(err, apperror.ErrCellOccupied):
		return apperror.ErrCellOccupied.Error()
	case errors.Is(err, apperror.ErrInvalidCell):
		return apperror.ErrInvalidCell.Error()
	case errors.Is(err, apperror.ErrAlreadyInMatch):
		return apperror.ErrAlreadyInMatch.Error()
	case errors.Is(err, apperror.ErrSelfJoin):
		return apperror.ErrSelfJoin.Error()
	case errors.Is(err, apperror.ErrJoinCodeInUse):
		return apperror.ErrJoinCodeInUse.Error()
	case errors.Is(err, apperror.ErrInvalidJoinCode):
		return apperror.ErrInvalidJoinCode.Error()
	default:
		return "internal error"
	}
}
