package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
)

// handleStats serves GET /stats/{userID}; the caller authenticates with a Bearer token.
func (that *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleStats")

	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	callerID, err := that.verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID := r.PathValue("userID")
	if userID == "" || userID == "me" {
		userID = callerID
	}

	stats, err := that.stats.GetStats(r.Context(), userID)
	if errors.Is(err, apperror.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if err != nil {
		log.Error("failed to get stats", "userID", userID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(stats); err != nil {
		log.Error("failed to encode stats", "error", err)
	}
}
