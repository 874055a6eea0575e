package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-live/internal/broadcast"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

const cleanupTimeout = 5 * time.Second

type uMatch interface {
	Create(ctx context.Context, creatorID, joinCode string) (*entity.Match, error)
	Join(ctx context.Context, matchRef, joinerID string) (*entity.Match, error)
	ApplyMove(ctx context.Context, matchID, playerID string, cell int) (*entity.Match, error)

	Connect(ctx context.Context, matchID, playerID string, sub broadcast.Subscriber) (*entity.Match, error)
	Disconnect(ctx context.Context, matchID, playerID, connectionID string) (*entity.Match, error)
	Snapshot(ctx context.Context, matchID string) (*entity.Match, error)

	ActiveFor(ctx context.Context, userID string) (*entity.Match, error)
	GetStats(ctx context.Context, userID string) (*entity.Stats, error)
}

type verifier interface {
	Verify(token string) (string, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
}

type handler func(ctx context.Context, conn *connection, msg *Message) error

type Server struct {
	logger *slog.Logger

	uMatch   uMatch
	verifier verifier
	users    userDirectory

	upgrader   websocket.Upgrader
	sendBuffer int

	handlers map[string]handler
}

func New(logger *slog.Logger, uMatch uMatch, verifier verifier, users userDirectory, sendBuffer int) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),

		uMatch:   uMatch,
		verifier: verifier,
		users:    users,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		sendBuffer: sendBuffer,

		handlers: make(map[string]handler),
	}

	server.handlers[actionCreate] = server.handleCreate
	server.handlers[actionJoin] = server.handleJoin
	server.handlers[actionMove] = server.handleMove
	server.handlers[actionStats] = server.handleStats
	server.handlers[actionActive] = server.handleActive

	return server
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", that)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// ServeHTTP authenticates the request and upgrades it to a WebSocket.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	userID, err := that.verifier.Verify(tokenFrom(req))
	if err != nil {
		log.Info("rejected connection", "error", err)
		http.Error(writer, "unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err = that.users.FindByID(req.Context(), userID); err != nil {
		log.Info("rejected unknown user", "userID", userID, "error", err)
		http.Error(writer, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := newConnection(that.logger, uuid.NewString(), userID, ws, that.sendBuffer)
	go conn.writePump()

	conn.logger.Info("WebSocket connection established")

	that.handleMessages(req.Context(), conn)
	that.handleDisconnect(req.Context(), conn)
}

// tokenFrom reads the token query parameter, falling back to a Bearer authorization header.
func tokenFrom(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}

	header := req.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}

// handleMessages - processes messages from the client until the socket closes.
func (that *Server) handleMessages(ctx context.Context, conn *connection) {
	log := conn.logger.With("method", "handleMessages")

	conn.conn.SetReadLimit(maxMessageSize)
	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("connection closed unexpectedly", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			that.sendErrorResponse(conn, "", "malformed message")
			continue
		}

		handle, ok := that.handlers[message.Action]
		if !ok {
			that.sendErrorResponse(conn, message.Action, "unknown action")
			continue
		}

		if err = handle(ctx, conn, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// handleDisconnect releases every match the socket took part in.
func (that *Server) handleDisconnect(ctx context.Context, conn *connection) {
	conn.close()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, matchID := range conn.tracked() {
		if _, err := that.uMatch.Disconnect(cleanupCtx, matchID, conn.userID, conn.id); err != nil {
			conn.logger.Error("failed to disconnect from match", "matchID", matchID, "error", err)
		}
	}

	conn.logger.Info("WebSocket connection closed")
}
