package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRateLimited = errors.New("RATE_LIMITED: Too many messages, slow down")
	ErrInternal    = errors.New("INTERNAL_ERROR: Something went wrong handling that message")
)

type handlerFunc func(s *Server, socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error

var handlers = map[string]handlerFunc{
	CmdPing:              (*Server).handlePing,
	CmdRegisterUser:      (*Server).handleRegisterUser,
	CmdCreateRoom:        (*Server).handleCreateRoom,
	CmdJoinRoom:          (*Server).handleJoinRoom,
	CmdStartGame:         (*Server).handleStartGame,
	CmdRandomizeTeams:    (*Server).handleRandomizeTeams,
	CmdSwapRequest:       (*Server).handleSwapRequest,
	CmdSwapResponse:      (*Server).handleSwapResponse,
	CmdConfirmTeams:      (*Server).handleConfirmTeams,
	CmdAskCard:           (*Server).handleAskCard,
	CmdMakeClaim:         (*Server).handleMakeClaim,
	CmdTogglePause:       (*Server).handleTogglePause,
	CmdDeclareWinner:     (*Server).handleDeclareWinner,
	CmdLeaveRoom:         (*Server).handleLeaveRoom,
	CmdLeaveGame:         (*Server).handleLeaveGame,
	CmdBackToLobby:       (*Server).handleBackToLobby,
	CmdPlayAgain:         (*Server).handlePlayAgain,
	CmdForceRedistribute: (*Server).handleForceRedistribute,
	CmdInviteToGame:      (*Server).handleInviteToGame,
	CmdInviteResponse:    (*Server).handleInviteResponse,
}

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/ws", s.websocketHandler)
	r.Get("/rooms/{code}", s.roomHandler)
	r.Get("/history", s.historyHandler)
	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originPatterns turns the configured CORS origin into the host pattern the
// websocket handshake checks against.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return []string{u.Host}
	}
	return []string{origin}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"rooms":       s.rooms.RoomCount(),
		"connections": s.connectionManager.Count(),
	})
}

func (s *Server) roomHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.rooms.Snapshot(chi.URLParam(r, "code"))
	if err != nil {
		code, message := splitErrorCode(err.Error())
		status := http.StatusNotFound
		if !errors.Is(err, ErrRoomNotFound) {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, ErrorMessage{Code: code, Message: message})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			s.writeJSON(w, http.StatusBadRequest, ErrorMessage{Code: "INVALID_LIMIT", Message: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	games, err := s.history.RecentGames(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load history", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, ErrorMessage{Code: "HISTORY_UNAVAILABLE", Message: "Could not load game history"})
		return
	}
	s.writeJSON(w, http.StatusOK, games)
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.CORSOrigin),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()
	connectionID := uuid.New().String()
	log := s.logger.With(zap.String("connection_id", connectionID))
	log.Debug("connection opened")

	s.connectionManager.AddConnection(connectionID, socket)
	defer s.closeConnection(connectionID)

	for {
		// Read from client
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Debug("connection read ended", zap.Error(err))
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		// Any frame counts as activity, even one the limiter rejects
		s.connectionHealth.UpdateActivity(connectionID)
		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(socket, ctx, ErrRateLimited)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(socket, ctx, fmt.Errorf("INVALID_JSON: %v", err))
			continue
		}
		if err := ValidateMessageType(msg.Type); err != nil {
			s.sendError(socket, ctx, err)
			continue
		}

		// Route the message
		if err := s.dispatch(socket, ctx, connectionID, msg); err != nil {
			s.sendError(socket, ctx, err)
		}
	}
}

// dispatch runs one command. A panic is contained to the command that
// caused it and reported to the caller as an internal error.
func (s *Server) dispatch(socket *websocket.Conn, ctx context.Context, connectionID string, msg ClientMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			binding, _ := s.connectionManager.Binding(connectionID)
			s.logger.Error("panic in message handler",
				zap.String("connection_id", connectionID),
				zap.String("room_code", binding.RoomCode),
				zap.String("type", msg.Type),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			err = ErrInternal
		}
	}()

	handle, ok := handlers[msg.Type]
	if !ok {
		return ValidateMessageType(msg.Type)
	}
	return handle(s, socket, ctx, connectionID, msg.Payload)
}

// closeConnection forgets a socket and, if it was seated somewhere, lets the
// disconnect monitor decide what happens to the seat.
func (s *Server) closeConnection(connectionID string) {
	// Remove connection
	binding := s.connectionManager.RemoveConnection(connectionID)
	s.rateLimiter.RemoveConnection(connectionID)
	s.connectionHealth.RemoveConnection(connectionID)

	if !binding.InRoom() || s.shuttingDown.Load() {
		return
	}

	u, err := s.rooms.Monitor().HandleDisconnect(binding.RoomCode, binding.PlayerID, connectionID)
	if err != nil {
		s.logger.Error("failed to handle disconnect",
			zap.String("connection_id", connectionID),
			zap.String("room_code", binding.RoomCode),
			zap.Error(err),
		)
		return
	}
	s.publish(u)
}
