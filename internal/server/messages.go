package server

import "encoding/json"

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Commands (client -> server)
const (
	CmdPing              = "PING"
	CmdRegisterUser      = "REGISTER_USER"
	CmdCreateRoom        = "CREATE_ROOM"
	CmdJoinRoom          = "JOIN_ROOM"
	CmdStartGame         = "START_GAME"
	CmdRandomizeTeams    = "RANDOMIZE_TEAMS"
	CmdSwapRequest       = "SWAP_REQUEST"
	CmdSwapResponse      = "SWAP_RESPONSE"
	CmdConfirmTeams      = "CONFIRM_TEAMS"
	CmdAskCard           = "ASK_CARD"
	CmdMakeClaim         = "MAKE_CLAIM"
	CmdTogglePause       = "TOGGLE_PAUSE"
	CmdDeclareWinner     = "DECLARE_WINNER"
	CmdLeaveRoom         = "LEAVE_ROOM"
	CmdLeaveGame         = "LEAVE_GAME"
	CmdBackToLobby       = "BACK_TO_LOBBY"
	CmdPlayAgain         = "PLAY_AGAIN"
	CmdForceRedistribute = "FORCE_REDISTRIBUTE"
	CmdInviteToGame      = "INVITE_TO_GAME"
	CmdInviteResponse    = "INVITE_RESPONSE"
)

// Events (server -> client)
const (
	EventPong                  = "PONG"
	EventUserRegistered        = "USER_REGISTERED"
	EventRoomCreated           = "ROOM_CREATED"
	EventPlayerJoined          = "PLAYER_JOINED"
	EventPlayerLeft            = "PLAYER_LEFT"
	EventTeamsAssigned         = "TEAMS_ASSIGNED"
	EventTeamsUpdated          = "TEAMS_UPDATED"
	EventSwapRequestSent       = "SWAP_REQUEST_SENT"
	EventSwapResponseResult    = "SWAP_RESPONSE_RESULT"
	EventGameStarted           = "GAME_STARTED"
	EventGameStateUpdate       = "GAME_STATE_UPDATE"
	EventGameRejoined          = "GAME_REJOINED"
	EventPlayerDisconnected    = "PLAYER_DISCONNECTED"
	EventPlayerReconnected     = "PLAYER_RECONNECTED"
	EventCardsRedistributed    = "CARDS_REDISTRIBUTED"
	EventLeftRoom              = "LEFT_ROOM"
	EventRoomClosed            = "ROOM_CLOSED"
	EventPlayerLeftGame        = "PLAYER_LEFT_GAME"
	EventGameInvite            = "GAME_INVITE"
	EventInviteSent            = "INVITE_SENT"
	EventInviteFailed          = "INVITE_FAILED"
	EventInviteResponse        = "INVITE_RESPONSE"
	EventDisconnectedElsewhere = "DISCONNECTED_ELSEWHERE"
	EventServerShutdown        = "SERVER_SHUTDOWN"
	EventError                 = "ERROR"
)
