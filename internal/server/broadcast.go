package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 5 * time.Second
	historyTimeout = 10 * time.Second
)

func (s *Server) sendMessage(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return socket.Write(ctx, websocket.MessageText, data)
}

// splitErrorCode separates the "CODE: message" convention used by every
// error the game and room layers return.
func splitErrorCode(text string) (code, message string) {
	prefix, rest, ok := strings.Cut(text, ": ")
	if !ok || prefix == "" {
		return "", text
	}
	for _, ch := range prefix {
		if (ch < 'A' || ch > 'Z') && ch != '_' {
			return "", text
		}
	}
	return prefix, rest
}

func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, err error) {
	code, message := splitErrorCode(err.Error())
	response := ServerMessage{
		Type: EventError,
		Payload: ErrorMessage{
			Message: message,
			Code:    code,
		},
	}

	if err := s.sendMessage(socket, ctx, response); err != nil {
		s.logger.Warn("failed to send error", zap.Error(err))
	}
}

// sendTo writes to one connection by id. Broadcasts use a background context
// so a slow reader cannot hold up the requester's handler context.
func (s *Server) sendTo(connectionID, msgType string, payload interface{}) {
	conn := s.connectionManager.GetConnection(connectionID)
	if conn == nil {
		return
	}
	if err := s.sendMessage(conn, context.Background(), ServerMessage{Type: msgType, Payload: payload}); err != nil {
		s.logger.Debug("failed to deliver message",
			zap.String("connection_id", connectionID),
			zap.String("type", msgType),
			zap.Error(err),
		)
	}
}

// broadcast sends the same message to every listed connection except skip.
func (s *Server) broadcast(connections []string, skip, msgType string, payload interface{}) {
	for _, connID := range connections {
		if connID == skip {
			continue
		}
		s.sendTo(connID, msgType, payload)
	}
}

// publish announces an update that no client request is waiting on: a
// closed socket or an expired reconnection deadline.
func (s *Server) publish(u *Update) {
	if u == nil {
		return
	}

	switch u.Event {
	case EventPlayerLeft:
		s.broadcast(u.Connections, "", EventPlayerLeft, playerNotification(u))
	case EventPlayerDisconnected:
		s.broadcast(u.Connections, "", EventPlayerDisconnected, PlayerDisconnectedNotification{
			PlayerID:      u.Player.ID,
			Name:          u.Player.Name,
			GracePeriodMs: u.Grace.Milliseconds(),
			ReconnectBy:   u.ReconnectBy,
			Room:          u.Room,
		})
	case EventCardsRedistributed, EventPlayerLeftGame:
		s.broadcast(u.Connections, "", u.Event, redistributionNotification(u))
	default:
		s.broadcast(u.Connections, "", EventGameStateUpdate, GameStateUpdate{Room: u.Room})
	}
	s.afterCommit(u)
}

// afterCommit runs the side effects that must wait until the new state has
// been broadcast.
func (s *Server) afterCommit(u *Update) {
	if u.Deleted {
		s.invites.ForgetRoom(u.Room.Code)
	}
	if u.Finished {
		s.recordHistory(u.Room, u.Released)
	}
}

func (s *Server) recordHistory(snap RoomSnapshot, released []Player) {
	rec := newGameRecord(snap, time.Now(), released...)
	if s.shuttingDown.Load() {
		s.logger.Warn("game finished during shutdown, not recorded", zap.String("room_code", rec.RoomCode))
		return
	}

	s.historyWG.Add(1)
	go func() {
		defer s.historyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		if err := s.history.RecordGame(ctx, rec); err != nil {
			s.logger.Error("failed to record game",
				zap.String("room_code", rec.RoomCode),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("game recorded",
			zap.String("room_code", rec.RoomCode),
			zap.String("winner", string(rec.Winner)),
		)
	}()
}

func playerNotification(u *Update) PlayerNotification {
	n := PlayerNotification{Room: u.Room}
	if u.Player != nil {
		n.PlayerID = u.Player.ID
		n.Name = u.Player.Name
	}
	return n
}

func redistributionNotification(u *Update) RedistributionNotification {
	n := RedistributionNotification{Room: u.Room}
	if u.Redistribution != nil {
		n.Redistribution = *u.Redistribution
	}
	if u.Player != nil {
		n.Name = u.Player.Name
	}
	return n
}
