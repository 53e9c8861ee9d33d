package server

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fish-server/internal/fish"
)

var (
	ErrRoomNotFound      = errors.New("ROOM_NOT_FOUND: Room not found")
	ErrRoomFull          = errors.New("ROOM_FULL: Room is full (10/10 players)")
	ErrGameInProgress    = errors.New("GAME_IN_PROGRESS: Cannot join a game in progress")
	ErrUseLeaveGame      = errors.New("GAME_IN_PROGRESS: Use LEAVE_GAME to leave a running game")
	ErrNotHost           = errors.New("NOT_HOST: Only the host can do that")
	ErrNotInRoom         = errors.New("NOT_IN_ROOM: Player is not in this room")
	ErrAlreadyInRoom     = errors.New("ALREADY_IN_ROOM: You are already in a room")
	ErrUsernameTaken     = errors.New("USERNAME_TAKEN: Someone in the room already has that name")
	ErrNotInLobby        = errors.New("NOT_IN_LOBBY: Room is not in the lobby")
	ErrNotInTeamSetup    = errors.New("NOT_IN_TEAM_SETUP: Teams are not being formed")
	ErrGameNotInProgress = errors.New("GAME_NOT_IN_PROGRESS: No game is running")
	ErrGameNotOver       = errors.New("GAME_NOT_OVER: The game has not finished")
	ErrNotDisconnected   = errors.New("NOT_DISCONNECTED: Player is not disconnected")
	ErrRoomCodeExhausted = errors.New("ROOM_CODE_EXHAUSTED: Could not allocate a room code")

	// errNoChange aborts a mutation that turned out to be a no-op.
	errNoChange = errors.New("no change")
)

// Update is the result of a committed room mutation: the new snapshot plus
// whatever the transport needs to pick and address events.
type Update struct {
	Event       string
	Room        RoomSnapshot
	Connections []string

	Player             *Player
	Ask                *fish.AskOutcome
	Claim              *fish.ClaimOutcome
	Swap               *fish.SwapRequest
	Redistribution     *fish.Redistribution
	Grace              time.Duration
	ReconnectBy        time.Time
	Paused             bool
	Rejoined           bool
	Reconnected        bool
	ReplacedConnection string
	Released           []Player
	Closed             bool
	Deleted            bool
	Finished           bool
}

type RoomManagerOptions struct {
	Grace         time.Duration
	DealRemainder bool
	Scheduler     Scheduler
	Rand          *rand.Rand
	Now           func() time.Time
	Logger        *zap.Logger
}

// RoomManager is the room registry. Every mutation runs under the room's
// lock and returns a snapshot taken before the lock is released.
type RoomManager struct {
	store         RoomStore
	monitor       *DisconnectMonitor
	logger        *zap.Logger
	now           func() time.Time
	dealRemainder bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRoomManager(store RoomStore, opts RoomManagerOptions) *RoomManager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clockScheduler{}
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultConfig().DisconnectGrace
	}

	m := &RoomManager{
		store:         store,
		logger:        opts.Logger,
		now:           opts.Now,
		dealRemainder: opts.DealRemainder,
		rng:           opts.Rand,
	}
	m.monitor = newDisconnectMonitor(m, opts.Grace, opts.Scheduler, opts.Logger)
	return m
}

func (m *RoomManager) Monitor() *DisconnectMonitor {
	return m.monitor
}

func (m *RoomManager) withRand(fn func(rng *rand.Rand) error) error {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return fn(m.rng)
}

func (m *RoomManager) lookup(code string) (*Room, error) {
	code = NormalizeRoomCode(code)
	if err := ValidateRoomCode(code); err != nil {
		return nil, err
	}
	room, ok := m.store.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// mutate runs fn with the room locked and commits the result.
func (m *RoomManager) mutate(code string, fn func(room *Room) (*Update, error)) (*Update, error) {
	room, err := m.lookup(code)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return nil, ErrRoomNotFound
	}
	u, err := fn(room)
	if err != nil {
		return nil, err
	}
	return m.commit(room, u), nil
}

func (m *RoomManager) commit(room *Room, u *Update) *Update {
	if u == nil {
		u = &Update{}
	}
	m.settle(room, u)

	room.version++
	u.Room = room.snapshot()
	u.Connections = room.connections()

	if len(room.Players) == 0 && !room.closed {
		m.closeRoom(room)
		u.Deleted = true
		m.logger.Info("room deleted (empty)", zap.String("room_code", room.Code))
	}
	return u
}

// settle moves a finished game into the game-over phase. Seats still held
// for disconnected players are released since there is nothing left to
// reconnect to.
func (m *RoomManager) settle(room *Room, u *Update) {
	if room.Phase != PhaseInProgress || room.Game == nil || !room.Game.GameOver {
		return
	}
	room.Phase = PhaseGameOver
	room.Game.DisconnectedPlayer = nil
	m.monitor.cancelAll(room)
	for _, p := range append([]*Player(nil), room.Players...) {
		if p.Disconnected {
			if removed := room.removePlayer(p.ID); removed != nil {
				u.Released = append(u.Released, *removed)
			}
		}
	}
	u.Finished = true

	m.logger.Info("game over",
		zap.String("room_code", room.Code),
		zap.String("winner", string(room.Game.Winner)),
		zap.Int("claims_a", len(room.Game.ClaimedHalfSuits.A)),
		zap.Int("claims_b", len(room.Game.ClaimedHalfSuits.B)),
	)
}

func (m *RoomManager) closeRoom(room *Room) {
	room.closed = true
	m.monitor.cancelAll(room)
	m.store.Delete(room.Code)
}

func copyPlayer(p *Player) *Player {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func newPlayer(connectionID, name, userID string) *Player {
	return &Player{
		ID:           fish.PlayerID(uuid.NewString()),
		ConnectionID: connectionID,
		Name:         strings.TrimSpace(name),
		UserID:       userID,
	}
}

func (m *RoomManager) CreateRoom(connectionID, name, userID string) (*Update, error) {
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}

	var room *Room
	for attempt := 0; attempt < maxRoomCodeAttempts && room == nil; attempt++ {
		var code string
		_ = m.withRand(func(rng *rand.Rand) error {
			code = GenerateRoomCode(rng)
			return nil
		})

		candidate := newRoom(code, m.now())
		candidate.mu.Lock()
		err := m.store.Insert(candidate)
		if err == nil {
			room = candidate
			break
		}
		candidate.mu.Unlock()
		if !errors.Is(err, ErrRoomCodeTaken) {
			return nil, err
		}
		m.logger.Debug("room code collision", zap.String("room_code", code))
	}
	if room == nil {
		return nil, ErrRoomCodeExhausted
	}
	defer room.mu.Unlock()

	host := newPlayer(connectionID, name, userID)
	host.IsHost = true
	room.Players = append(room.Players, host)
	room.HostID = host.ID

	m.logger.Info("room created",
		zap.String("room_code", room.Code),
		zap.String("player_id", string(host.ID)),
		zap.String("connection_id", connectionID),
	)
	return m.commit(room, &Update{Player: copyPlayer(host)}), nil
}

// JoinRoom seats a new player in the lobby. A registered user who already
// holds a seat in the room is reconnected instead, in any phase.
func (m *RoomManager) JoinRoom(code, connectionID, name, userID string) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if existing := room.playerByUser(userID); existing != nil {
			return m.monitor.rejoin(room, existing, connectionID), nil
		}
		for _, p := range room.Players {
			if p.ConnectionID == connectionID {
				return nil, ErrAlreadyInRoom
			}
		}
		if room.Phase != PhaseLobby {
			return nil, ErrGameInProgress
		}
		if len(room.Players) >= fish.MaxPlayers {
			return nil, ErrRoomFull
		}
		if err := ValidateUsername(name); err != nil {
			return nil, err
		}
		for _, p := range room.Players {
			if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
				return nil, ErrUsernameTaken
			}
		}

		p := newPlayer(connectionID, name, userID)
		room.Players = append(room.Players, p)
		if room.HostID == "" {
			room.electHost()
		}

		m.logger.Info("player joined",
			zap.String("room_code", room.Code),
			zap.String("player_id", string(p.ID)),
			zap.Int("players", len(room.Players)),
		)
		return &Update{Player: copyPlayer(p)}, nil
	})
}

func requireHost(room *Room, id fish.PlayerID) error {
	if room.player(id) == nil {
		return ErrNotInRoom
	}
	if !room.isHost(id) {
		return ErrNotHost
	}
	return nil
}

func (m *RoomManager) StartGame(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireHost(room, id); err != nil {
			return nil, err
		}
		if room.Phase != PhaseLobby {
			return nil, ErrNotInLobby
		}
		if !fish.ValidPlayerCount(len(room.Players)) {
			return nil, fish.ErrInvalidPlayerCount
		}

		var setup *fish.TeamSetup
		err := m.withRand(func(rng *rand.Rand) (err error) {
			setup, err = fish.NewTeamSetup(room.playerIDs(), rng)
			return err
		})
		if err != nil {
			return nil, err
		}
		room.TeamSetup = setup
		room.Phase = PhaseTeamSetup
		return &Update{}, nil
	})
}

func (m *RoomManager) RandomizeTeams(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireHost(room, id); err != nil {
			return nil, err
		}
		if room.Phase != PhaseTeamSetup || room.TeamSetup == nil {
			return nil, ErrNotInTeamSetup
		}
		err := m.withRand(func(rng *rand.Rand) error {
			return room.TeamSetup.Randomize(rng)
		})
		if err != nil {
			return nil, err
		}
		return &Update{}, nil
	})
}

func (m *RoomManager) RequestSwap(code string, id, target fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if room.player(id) == nil {
			return nil, ErrNotInRoom
		}
		if room.Phase != PhaseTeamSetup || room.TeamSetup == nil {
			return nil, ErrNotInTeamSetup
		}
		req, err := room.TeamSetup.RequestSwap(id, target)
		if err != nil {
			return nil, err
		}
		return &Update{Swap: &req, Player: copyPlayer(room.player(target))}, nil
	})
}

func (m *RoomManager) RespondSwap(code string, id fish.PlayerID, requestID int, accept bool) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if room.player(id) == nil {
			return nil, ErrNotInRoom
		}
		if room.Phase != PhaseTeamSetup || room.TeamSetup == nil {
			return nil, ErrNotInTeamSetup
		}
		req, err := room.TeamSetup.RespondSwap(requestID, id, accept)
		if err != nil {
			return nil, err
		}
		return &Update{Swap: &req}, nil
	})
}

// ConfirmTeams freezes the partition and deals. Seat order follows the
// roster, so the first player in the room opens.
func (m *RoomManager) ConfirmTeams(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireHost(room, id); err != nil {
			return nil, err
		}
		if room.Phase != PhaseTeamSetup || room.TeamSetup == nil {
			return nil, ErrNotInTeamSetup
		}

		var game *fish.GameState
		err := m.withRand(func(rng *rand.Rand) (err error) {
			game, err = fish.NewGame(room.playerIDs(), room.TeamSetup.Teams, fish.Options{
				DealRemainder: m.dealRemainder,
				Rand:          rng,
				Now:           m.now,
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		room.Game = game
		room.TeamSetup = nil
		room.Phase = PhaseInProgress

		m.logger.Info("game started",
			zap.String("room_code", room.Code),
			zap.Int("players", len(room.Players)),
			zap.Int("undealt", len(game.Undealt)),
		)
		return &Update{}, nil
	})
}

// LeaveRoom removes a player outside of a running game. The host may close
// the room for everyone instead.
func (m *RoomManager) LeaveRoom(code string, id fish.PlayerID, closeRoom bool) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		p := room.player(id)
		if p == nil {
			return nil, ErrNotInRoom
		}

		if closeRoom {
			if !room.isHost(id) {
				return nil, ErrNotHost
			}
			m.closeRoom(room)
			m.logger.Info("room closed by host", zap.String("room_code", room.Code))
			return &Update{Player: copyPlayer(p), Closed: true, Deleted: true}, nil
		}

		if room.Phase == PhaseInProgress {
			return nil, ErrUseLeaveGame
		}
		return m.leaveLocked(room, p), nil
	})
}

// leaveLocked is a plain roster removal. Leaving during team setup sends the
// room back to the lobby since the teams can no longer be balanced.
func (m *RoomManager) leaveLocked(room *Room, p *Player) *Update {
	removed := room.removePlayer(p.ID)
	if room.Phase == PhaseTeamSetup {
		room.TeamSetup = nil
		room.Phase = PhaseLobby
	}
	m.logger.Info("player left room",
		zap.String("room_code", room.Code),
		zap.String("player_id", string(p.ID)),
	)
	return &Update{Player: copyPlayer(removed)}
}

// LeaveGame is a voluntary exit from a running game: the player's cards are
// redistributed at once. After the game is over it is a plain departure.
func (m *RoomManager) LeaveGame(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		p := room.player(id)
		if p == nil {
			return nil, ErrNotInRoom
		}
		switch room.Phase {
		case PhaseInProgress:
			return m.monitor.removeFromGame(room, id, EventPlayerLeftGame)
		case PhaseGameOver:
			return m.leaveLocked(room, p), nil
		default:
			return nil, ErrGameNotInProgress
		}
	})
}

func (m *RoomManager) BackToLobby(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireHost(room, id); err != nil {
			return nil, err
		}
		if room.Phase != PhaseGameOver {
			return nil, ErrGameNotOver
		}
		room.Game = nil
		room.TeamSetup = nil
		room.Phase = PhaseLobby
		return &Update{}, nil
	})
}

// PlayAgain keeps the roster and opens a fresh team setup.
func (m *RoomManager) PlayAgain(code string, id fish.PlayerID) (*Update, error) {
	return m.mutate(code, func(room *Room) (*Update, error) {
		if err := requireHost(room, id); err != nil {
			return nil, err
		}
		if room.Phase != PhaseGameOver {
			return nil, ErrGameNotOver
		}
		if !fish.ValidPlayerCount(len(room.Players)) {
			return nil, fish.ErrInvalidPlayerCount
		}

		var setup *fish.TeamSetup
		err := m.withRand(func(rng *rand.Rand) (err error) {
			setup, err = fish.NewTeamSetup(room.playerIDs(), rng)
			return err
		})
		if err != nil {
			return nil, err
		}
		room.Game = nil
		room.TeamSetup = setup
		room.Phase = PhaseTeamSetup
		return &Update{}, nil
	})
}

func (m *RoomManager) Snapshot(code string) (RoomSnapshot, error) {
	room, err := m.lookup(code)
	if err != nil {
		return RoomSnapshot{}, err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return RoomSnapshot{}, ErrRoomNotFound
	}
	return room.snapshot(), nil
}

func (m *RoomManager) RoomCount() int {
	return m.store.Len()
}
