package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var ErrInvalidPayload = errors.New("INVALID_PAYLOAD: Malformed payload")

func decodePayload(payload json.RawMessage, msgType string, dst interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("INVALID_PAYLOAD: Invalid %s payload", msgType)
	}
	return nil
}

// seat returns the caller's room binding. roomCode is optional; when given it
// must name the caller's room.
func (s *Server) seat(connectionID, roomCode string) (PlayerConnection, error) {
	binding, _ := s.connectionManager.Binding(connectionID)
	if !binding.InRoom() {
		return PlayerConnection{}, ErrNotInRoom
	}
	if roomCode != "" && NormalizeRoomCode(roomCode) != binding.RoomCode {
		return PlayerConnection{}, ErrNotInRoom
	}
	return binding, nil
}

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	return s.sendMessage(socket, ctx, ServerMessage{Type: EventPong, Payload: struct{}{}})
}

func (s *Server) handleRegisterUser(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req RegisterUserRequest
	if err := decodePayload(payload, CmdRegisterUser, &req); err != nil {
		return err
	}

	session, err := s.sessionManager.Register(req.Token, req.Name)
	if err != nil {
		return err
	}

	previous := s.connectionManager.SetUser(connectionID, session.UserID, session.Name)
	if err := s.sendMessage(socket, ctx, ServerMessage{
		Type: EventUserRegistered,
		Payload: UserRegisteredResponse{
			Token:  session.Token,
			UserID: session.UserID,
			Name:   session.Name,
		},
	}); err != nil {
		return err
	}

	if previous != "" {
		s.switchDevice(socket, ctx, previous, connectionID, session)
	}
	return nil
}

// switchDevice moves a registered user from an old socket to a new one. A
// seat held by the old socket follows the user.
func (s *Server) switchDevice(socket *websocket.Conn, ctx context.Context, oldConnectionID, connectionID string, session SessionInfo) {
	s.logger.Info("user connected from another device",
		zap.String("user_id", session.UserID),
		zap.String("old_connection_id", oldConnectionID),
		zap.String("connection_id", connectionID),
	)

	binding, _ := s.connectionManager.Binding(oldConnectionID)
	if binding.InRoom() {
		if err := s.joinRoom(socket, ctx, connectionID, JoinRoomRequest{RoomCode: binding.RoomCode, Name: session.Name}); err != nil {
			s.logger.Warn("failed to move seat to new device",
				zap.String("room_code", binding.RoomCode),
				zap.Error(err),
			)
		}
	}
	s.dropConnection(oldConnectionID)
}

// dropConnection tells a superseded socket it has been replaced and closes
// it. The socket is forgotten first so its read loop does not report the
// close as a disconnect.
func (s *Server) dropConnection(connectionID string) {
	old := s.connectionManager.GetConnection(connectionID)
	if old == nil {
		return
	}
	s.connectionManager.RemoveConnection(connectionID)

	msg := ServerMessage{
		Type:    EventDisconnectedElsewhere,
		Payload: NoticeMessage{Message: "You connected on another device"},
	}
	if err := s.sendMessage(old, context.Background(), msg); err != nil {
		s.logger.Debug("failed to notify replaced connection", zap.String("connection_id", connectionID), zap.Error(err))
	}
	old.Close(websocket.StatusNormalClosure, "Connected from another device")
}

func (s *Server) handleCreateRoom(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req CreateRoomRequest
	if err := decodePayload(payload, CmdCreateRoom, &req); err != nil {
		return err
	}

	binding, _ := s.connectionManager.Binding(connectionID)
	if binding.InRoom() {
		return ErrAlreadyInRoom
	}
	name := req.Name
	if name == "" {
		name = binding.Name
	}

	u, err := s.rooms.CreateRoom(connectionID, name, binding.UserID)
	if err != nil {
		return err
	}
	s.connectionManager.Bind(connectionID, u.Room.Code, u.Player.ID)

	return s.sendMessage(socket, ctx, ServerMessage{
		Type: EventRoomCreated,
		Payload: RoomJoinedResponse{
			RoomCode: u.Room.Code,
			PlayerID: u.Player.ID,
			Room:     u.Room,
		},
	})
}

func (s *Server) handleJoinRoom(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req JoinRoomRequest
	if err := decodePayload(payload, CmdJoinRoom, &req); err != nil {
		return err
	}
	return s.joinRoom(socket, ctx, connectionID, req)
}

func (s *Server) joinRoom(socket *websocket.Conn, ctx context.Context, connectionID string, req JoinRoomRequest) error {
	binding, _ := s.connectionManager.Binding(connectionID)
	if binding.InRoom() && binding.RoomCode != NormalizeRoomCode(req.RoomCode) {
		return ErrAlreadyInRoom
	}
	name := req.Name
	if name == "" {
		name = binding.Name
	}

	u, err := s.rooms.JoinRoom(req.RoomCode, connectionID, name, binding.UserID)
	if err != nil {
		return err
	}
	s.connectionManager.Bind(connectionID, u.Room.Code, u.Player.ID)

	if !u.Rejoined {
		s.broadcast(u.Connections, "", EventPlayerJoined, playerNotification(u))
		return nil
	}

	if err := s.sendMessage(socket, ctx, ServerMessage{
		Type: EventGameRejoined,
		Payload: RoomJoinedResponse{
			RoomCode: u.Room.Code,
			PlayerID: u.Player.ID,
			Room:     u.Room,
		},
	}); err != nil {
		return err
	}
	if u.ReplacedConnection != "" && u.ReplacedConnection != connectionID {
		s.dropConnection(u.ReplacedConnection)
	}
	if u.Reconnected {
		s.broadcast(u.Connections, connectionID, EventPlayerReconnected, playerNotification(u))
	}
	return nil
}

// roomCommand decodes a payload that carries only the room code and
// returns the caller's seat.
func (s *Server) roomCommand(connectionID string, payload json.RawMessage, msgType string) (PlayerConnection, error) {
	var req RoomCommand
	if err := decodePayload(payload, msgType, &req); err != nil {
		return PlayerConnection{}, err
	}
	return s.seat(connectionID, req.RoomCode)
}

func (s *Server) handleStartGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdStartGame)
	if err != nil {
		return err
	}
	u, err := s.rooms.StartGame(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventTeamsAssigned, RoomEvent{Room: u.Room})
	return nil
}

func (s *Server) handleRandomizeTeams(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdRandomizeTeams)
	if err != nil {
		return err
	}
	u, err := s.rooms.RandomizeTeams(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventTeamsUpdated, RoomEvent{Room: u.Room})
	return nil
}

func (s *Server) handleSwapRequest(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req SwapRequestCommand
	if err := decodePayload(payload, CmdSwapRequest, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.RequestSwap(seat.RoomCode, seat.PlayerID, req.TargetID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventSwapRequestSent, SwapNotification{Request: *u.Swap, Room: u.Room})
	return nil
}

func (s *Server) handleSwapResponse(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req SwapResponseCommand
	if err := decodePayload(payload, CmdSwapResponse, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.RespondSwap(seat.RoomCode, seat.PlayerID, req.RequestID, req.Accept)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventSwapResponseResult, SwapNotification{Request: *u.Swap, Room: u.Room})
	return nil
}

func (s *Server) handleConfirmTeams(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdConfirmTeams)
	if err != nil {
		return err
	}
	u, err := s.rooms.ConfirmTeams(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventGameStarted, RoomEvent{Room: u.Room})
	return nil
}

func (s *Server) handleAskCard(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req AskCardRequest
	if err := decodePayload(payload, CmdAskCard, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.AskCard(seat.RoomCode, seat.PlayerID, req.TargetID, req.Card)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventGameStateUpdate, GameStateUpdate{Room: u.Room, Ask: u.Ask})
	return nil
}

func (s *Server) handleMakeClaim(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req MakeClaimRequest
	if err := decodePayload(payload, CmdMakeClaim, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.MakeClaim(seat.RoomCode, seat.PlayerID, req.HalfSuit, req.Distribution, req.TargetTeam)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventGameStateUpdate, GameStateUpdate{Room: u.Room, Claim: u.Claim})
	s.afterCommit(u)
	return nil
}

func (s *Server) handleTogglePause(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdTogglePause)
	if err != nil {
		return err
	}
	u, err := s.rooms.TogglePause(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventGameStateUpdate, GameStateUpdate{Room: u.Room})
	return nil
}

func (s *Server) handleDeclareWinner(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req DeclareWinnerRequest
	if err := decodePayload(payload, CmdDeclareWinner, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.DeclareWinner(seat.RoomCode, seat.PlayerID, req.Team)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventGameStateUpdate, GameStateUpdate{Room: u.Room})
	s.afterCommit(u)
	return nil
}

func (s *Server) handleLeaveRoom(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req LeaveRoomRequest
	if err := decodePayload(payload, CmdLeaveRoom, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.LeaveRoom(seat.RoomCode, seat.PlayerID, req.Close)
	if err != nil {
		return err
	}

	if u.Closed {
		for _, connID := range u.Connections {
			s.connectionManager.Unbind(connID)
		}
		s.broadcast(u.Connections, "", EventRoomClosed, RoomClosedNotification{
			RoomCode: u.Room.Code,
			Message:  "The host closed the room",
		})
		s.afterCommit(u)
		return nil
	}

	s.connectionManager.Unbind(connectionID)
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: EventLeftRoom, Payload: RoomCommand{RoomCode: u.Room.Code}}); err != nil {
		s.logger.Debug("failed to confirm leave", zap.Error(err))
	}
	s.broadcast(u.Connections, "", EventPlayerLeft, playerNotification(u))
	s.afterCommit(u)
	return nil
}

func (s *Server) handleLeaveGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdLeaveGame)
	if err != nil {
		return err
	}
	u, err := s.rooms.LeaveGame(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}

	s.connectionManager.Unbind(connectionID)
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: EventLeftRoom, Payload: RoomCommand{RoomCode: u.Room.Code}}); err != nil {
		s.logger.Debug("failed to confirm leave", zap.Error(err))
	}
	if u.Redistribution != nil {
		s.broadcast(u.Connections, "", EventPlayerLeftGame, redistributionNotification(u))
	} else {
		s.broadcast(u.Connections, "", EventPlayerLeft, playerNotification(u))
	}
	s.afterCommit(u)
	return nil
}

func (s *Server) handleBackToLobby(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdBackToLobby)
	if err != nil {
		return err
	}
	u, err := s.rooms.BackToLobby(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventGameStateUpdate, GameStateUpdate{Room: u.Room})
	return nil
}

func (s *Server) handlePlayAgain(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	seat, err := s.roomCommand(connectionID, payload, CmdPlayAgain)
	if err != nil {
		return err
	}
	u, err := s.rooms.PlayAgain(seat.RoomCode, seat.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventTeamsAssigned, RoomEvent{Room: u.Room})
	return nil
}

func (s *Server) handleForceRedistribute(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req ForceRedistributeRequest
	if err := decodePayload(payload, CmdForceRedistribute, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, req.RoomCode)
	if err != nil {
		return err
	}

	u, err := s.rooms.Monitor().ForceRedistribute(seat.RoomCode, seat.PlayerID, req.PlayerID)
	if err != nil {
		return err
	}
	s.broadcast(u.Connections, "", EventCardsRedistributed, redistributionNotification(u))
	s.afterCommit(u)
	return nil
}

func (s *Server) handleInviteToGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req InviteToGameRequest
	if err := decodePayload(payload, CmdInviteToGame, &req); err != nil {
		return err
	}
	seat, err := s.seat(connectionID, "")
	if err != nil {
		return err
	}
	if seat.UserID == "" {
		return ErrNotRegistered
	}
	if req.TargetUserID == seat.UserID {
		return ErrInviteSelf
	}

	target := s.connectionManager.ConnectionForUser(req.TargetUserID)
	if target == "" {
		return s.sendMessage(socket, ctx, ServerMessage{
			Type: EventInviteFailed,
			Payload: InviteResult{
				TargetUserID: req.TargetUserID,
				RoomCode:     seat.RoomCode,
				Message:      "User is not online",
			},
		})
	}

	inv := s.invites.Add(Invite{
		RoomCode:     seat.RoomCode,
		FromUserID:   seat.UserID,
		FromName:     seat.Name,
		TargetUserID: req.TargetUserID,
	})
	s.sendTo(target, EventGameInvite, GameInviteNotification{
		RoomCode:   inv.RoomCode,
		FromUserID: inv.FromUserID,
		FromName:   inv.FromName,
	})
	return s.sendMessage(socket, ctx, ServerMessage{
		Type:    EventInviteSent,
		Payload: InviteResult{TargetUserID: req.TargetUserID, RoomCode: seat.RoomCode},
	})
}

func (s *Server) handleInviteResponse(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) error {
	var req InviteResponseRequest
	if err := decodePayload(payload, CmdInviteResponse, &req); err != nil {
		return err
	}
	binding, _ := s.connectionManager.Binding(connectionID)
	if binding.UserID == "" {
		return ErrNotRegistered
	}

	inv, err := s.invites.Take(binding.UserID, NormalizeRoomCode(req.RoomCode))
	if err != nil {
		return err
	}

	if inviter := s.connectionManager.ConnectionForUser(inv.FromUserID); inviter != "" {
		s.sendTo(inviter, EventInviteResponse, InviteAnswerNotification{
			RoomCode: inv.RoomCode,
			UserID:   binding.UserID,
			Name:     binding.Name,
			Accepted: req.Accept,
		})
	}

	if !req.Accept {
		return nil
	}
	return s.joinRoom(socket, ctx, connectionID, JoinRoomRequest{RoomCode: inv.RoomCode, Name: binding.Name})
}
