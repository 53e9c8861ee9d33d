package server

import (
	"slices"
	"sync"
	"time"

	"fish-server/internal/fish"
)

type RoomPhase string

const (
	PhaseLobby      RoomPhase = "lobby"
	PhaseTeamSetup  RoomPhase = "team_setup"
	PhaseInProgress RoomPhase = "in_progress"
	PhaseGameOver   RoomPhase = "game_over"
)

type Player struct {
	ID           fish.PlayerID `json:"id"`
	ConnectionID string        `json:"-"`
	Name         string        `json:"name"`
	IsHost       bool          `json:"isHost"`
	UserID       string        `json:"userId,omitempty"`
	Disconnected bool          `json:"disconnected"`

	disconnectedAt time.Time
}

// Room is one table. Every field is guarded by mu; closed is set once the
// room has been removed from the store so holders of a stale pointer back off.
type Room struct {
	mu sync.Mutex

	Code      string
	Players   []*Player
	HostID    fish.PlayerID
	Phase     RoomPhase
	TeamSetup *fish.TeamSetup
	Game      *fish.GameState
	CreatedAt time.Time

	version   uint64
	closed    bool
	deadlines map[fish.PlayerID]*deadline
}

// deadline is an armed reconnection timer. epoch identifies the arming so a
// callback that lost the race to a reconnect can tell it is stale.
type deadline struct {
	timer     Timer
	epoch     uint64
	expiresAt time.Time
}

// RoomSnapshot is the serialized form of a room sent to clients. It shares no
// memory with the live room.
type RoomSnapshot struct {
	Code      string          `json:"code"`
	Phase     RoomPhase       `json:"phase"`
	HostID    fish.PlayerID   `json:"hostId"`
	Players   []Player        `json:"players"`
	TeamSetup *fish.TeamSetup `json:"teamSetup,omitempty"`
	GameState *fish.GameState `json:"gameState,omitempty"`
	Version   uint64          `json:"version"`
}

func newRoom(code string, now time.Time) *Room {
	return &Room{
		Code:      code,
		Players:   make([]*Player, 0, fish.MaxPlayers),
		Phase:     PhaseLobby,
		CreatedAt: now,
		deadlines: make(map[fish.PlayerID]*deadline),
	}
}

func (r *Room) player(id fish.PlayerID) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerByUser(userID string) *Player {
	if userID == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) playerIDs() []fish.PlayerID {
	ids := make([]fish.PlayerID, len(r.Players))
	for i, p := range r.Players {
		ids[i] = p.ID
	}
	return ids
}

// activePlayers are seated and connected, in roster order.
func (r *Room) activePlayers() []fish.PlayerID {
	ids := make([]fish.PlayerID, 0, len(r.Players))
	for _, p := range r.Players {
		if !p.Disconnected {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) connections() []string {
	conns := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if !p.Disconnected && p.ConnectionID != "" {
			conns = append(conns, p.ConnectionID)
		}
	}
	return conns
}

func (r *Room) removePlayer(id fish.PlayerID) *Player {
	idx := slices.IndexFunc(r.Players, func(p *Player) bool { return p.ID == id })
	if idx == -1 {
		return nil
	}
	removed := r.Players[idx]
	r.Players = slices.Delete(r.Players, idx, idx+1)
	if r.HostID == id {
		r.electHost()
	}
	return removed
}

// electHost hands the host role to the first connected player, or to the
// first player at all when nobody is connected.
func (r *Room) electHost() {
	var next *Player
	for _, p := range r.Players {
		if !p.Disconnected {
			next = p
			break
		}
	}
	if next == nil && len(r.Players) > 0 {
		next = r.Players[0]
	}

	r.HostID = ""
	for _, p := range r.Players {
		p.IsHost = p == next
	}
	if next != nil {
		r.HostID = next.ID
	}
}

func (r *Room) isHost(id fish.PlayerID) bool {
	return id != "" && r.HostID == id
}

func (r *Room) snapshot() RoomSnapshot {
	players := make([]Player, len(r.Players))
	for i, p := range r.Players {
		players[i] = *p
	}
	return RoomSnapshot{
		Code:      r.Code,
		Phase:     r.Phase,
		HostID:    r.HostID,
		Players:   players,
		TeamSetup: r.TeamSetup.Clone(),
		GameState: r.Game.Clone(),
		Version:   r.version,
	}
}
