package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fish-server/internal/fish"
)

// Timer is the part of *time.Timer the monitor needs.
type Timer interface {
	Stop() bool
}

// Scheduler arms reconnection deadlines. AfterFunc must run f on its own
// goroutine, never inline.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Notifier receives updates produced outside of a client request, which
// today means an expired reconnection deadline.
type Notifier func(u *Update)

// DisconnectMonitor holds seats for players who lost their connection in the
// middle of a game. A registered player gets a grace period to come back;
// anyone else has their cards redistributed straight away.
//
// Deadlines live on the room and are only touched under the room lock. Each
// arming gets a fresh epoch, so a callback that fires after a reconnect (or
// after a forced redistribution) finds a different epoch and does nothing.
type DisconnectMonitor struct {
	rooms     *RoomManager
	grace     time.Duration
	scheduler Scheduler
	logger    *zap.Logger
	epoch     atomic.Uint64

	mu     sync.RWMutex
	notify Notifier
}

func newDisconnectMonitor(rooms *RoomManager, grace time.Duration, scheduler Scheduler, logger *zap.Logger) *DisconnectMonitor {
	return &DisconnectMonitor{
		rooms:     rooms,
		grace:     grace,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (d *DisconnectMonitor) Grace() time.Duration {
	return d.grace
}

func (d *DisconnectMonitor) SetNotifier(fn Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notify = fn
}

func (d *DisconnectMonitor) notifier() Notifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notify
}

// HandleDisconnect reacts to a closed socket. It returns nil when there is
// nothing to announce: the room is gone, or the player has already moved to
// another connection.
func (d *DisconnectMonitor) HandleDisconnect(code string, id fish.PlayerID, connectionID string) (*Update, error) {
	u, err := d.rooms.mutate(code, func(room *Room) (*Update, error) {
		p := room.player(id)
		if p == nil || p.Disconnected || p.ConnectionID != connectionID {
			return nil, errNoChange
		}

		switch room.Phase {
		case PhaseInProgress:
			if p.UserID == "" {
				d.logger.Info("anonymous player disconnected, redistributing",
					zap.String("room_code", room.Code),
					zap.String("player_id", string(id)),
				)
				return d.removeFromGame(room, id, EventCardsRedistributed)
			}
			return d.suspend(room, p), nil
		default:
			u := d.rooms.leaveLocked(room, p)
			u.Event = EventPlayerLeft
			return u, nil
		}
	})
	if errors.Is(err, errNoChange) || errors.Is(err, ErrRoomNotFound) {
		return nil, nil
	}
	return u, err
}

func (d *DisconnectMonitor) suspend(room *Room, p *Player) *Update {
	now := d.rooms.now()
	p.Disconnected = true
	p.disconnectedAt = now
	if room.HostID == p.ID {
		room.electHost()
	}

	expiresAt := now.Add(d.grace)
	d.arm(room, p.ID, expiresAt)
	room.Game.Suspend(fish.DisconnectedMarker{
		PlayerID:       p.ID,
		Name:           p.Name,
		DisconnectedAt: now,
		ReconnectBy:    expiresAt,
	})

	d.logger.Info("player disconnected, holding seat",
		zap.String("room_code", room.Code),
		zap.String("player_id", string(p.ID)),
		zap.Duration("grace", d.grace),
	)
	return &Update{
		Event:       EventPlayerDisconnected,
		Player:      copyPlayer(p),
		Grace:       d.grace,
		ReconnectBy: expiresAt,
		Paused:      true,
	}
}

func (d *DisconnectMonitor) arm(room *Room, id fish.PlayerID, expiresAt time.Time) {
	d.cancel(room, id)

	epoch := d.epoch.Add(1)
	code := room.Code
	timer := d.scheduler.AfterFunc(d.grace, func() {
		d.expire(code, id, epoch)
	})
	room.deadlines[id] = &deadline{timer: timer, epoch: epoch, expiresAt: expiresAt}
}

func (d *DisconnectMonitor) cancel(room *Room, id fish.PlayerID) {
	if dl, ok := room.deadlines[id]; ok {
		dl.timer.Stop()
		delete(room.deadlines, id)
	}
}

func (d *DisconnectMonitor) cancelAll(room *Room) {
	for id := range room.deadlines {
		d.cancel(room, id)
	}
}

func (d *DisconnectMonitor) expire(code string, id fish.PlayerID, epoch uint64) {
	u, err := d.rooms.mutate(code, func(room *Room) (*Update, error) {
		dl, ok := room.deadlines[id]
		if !ok || dl.epoch != epoch {
			return nil, errNoChange
		}
		delete(room.deadlines, id)

		p := room.player(id)
		if p == nil || !p.Disconnected || room.Phase != PhaseInProgress {
			return nil, errNoChange
		}
		return d.removeFromGame(room, id, EventCardsRedistributed)
	})
	if err != nil {
		if !errors.Is(err, errNoChange) && !errors.Is(err, ErrRoomNotFound) {
			d.logger.Error("reconnection deadline failed",
				zap.String("room_code", code),
				zap.String("player_id", string(id)),
				zap.Error(err),
			)
		}
		return
	}

	d.logger.Info("reconnection deadline expired",
		zap.String("room_code", code),
		zap.String("player_id", string(id)),
		zap.Int("cards_moved", u.Redistribution.CardsMoved),
	)
	if notify := d.notifier(); notify != nil {
		notify(u)
	}
}

// ForceRedistribute lets the host stop waiting for a disconnected player.
func (d *DisconnectMonitor) ForceRedistribute(code string, hostID, target fish.PlayerID) (*Update, error) {
	return d.rooms.mutate(code, func(room *Room) (*Update, error) {
		if err := requireHost(room, hostID); err != nil {
			return nil, err
		}
		if room.Phase != PhaseInProgress || room.Game == nil {
			return nil, ErrGameNotInProgress
		}
		p := room.player(target)
		if p == nil {
			return nil, ErrNotInRoom
		}
		if !p.Disconnected {
			return nil, ErrNotDisconnected
		}

		d.logger.Info("host forced redistribution",
			zap.String("room_code", room.Code),
			zap.String("player_id", string(target)),
		)
		return d.removeFromGame(room, target, EventCardsRedistributed)
	})
}

// removeFromGame deals the player's hand to everyone still connected and
// drops them from the room. Called with the room locked.
func (d *DisconnectMonitor) removeFromGame(room *Room, id fish.PlayerID, event string) (*Update, error) {
	recipients := make([]fish.PlayerID, 0, len(room.Players))
	for _, pid := range room.activePlayers() {
		if pid != id {
			recipients = append(recipients, pid)
		}
	}

	out, err := room.Game.RemovePlayer(id, recipients)
	if err != nil {
		return nil, err
	}
	d.cancel(room, id)
	removed := room.removePlayer(id)

	if marker := room.Game.DisconnectedPlayer; marker != nil && marker.PlayerID == id {
		room.Game.Resume(id, d.nextMarker(room))
	}

	return &Update{
		Event:          event,
		Player:         copyPlayer(removed),
		Redistribution: &out,
	}, nil
}

// rejoin reattaches a registered player to a new connection. Called with the
// room locked.
func (d *DisconnectMonitor) rejoin(room *Room, p *Player, connectionID string) *Update {
	u := &Update{Event: EventGameRejoined, Rejoined: true}
	if p.ConnectionID != connectionID && !p.Disconnected {
		u.ReplacedConnection = p.ConnectionID
	}
	p.ConnectionID = connectionID

	if p.Disconnected {
		d.cancel(room, p.ID)
		p.Disconnected = false
		p.disconnectedAt = time.Time{}
		u.Reconnected = true

		if room.Game != nil {
			if marker := room.Game.DisconnectedPlayer; marker != nil && marker.PlayerID == p.ID {
				room.Game.Resume(p.ID, d.nextMarker(room))
			}
		}
		d.logger.Info("player reconnected",
			zap.String("room_code", room.Code),
			zap.String("player_id", string(p.ID)),
		)
	}

	u.Player = copyPlayer(p)
	return u
}

// nextMarker picks the earliest remaining disconnected player so the game
// stays paused on their behalf.
func (d *DisconnectMonitor) nextMarker(room *Room) *fish.DisconnectedMarker {
	var next *Player
	for _, p := range room.Players {
		if !p.Disconnected {
			continue
		}
		if next == nil || p.disconnectedAt.Before(next.disconnectedAt) {
			next = p
		}
	}
	if next == nil {
		return nil
	}

	marker := &fish.DisconnectedMarker{
		PlayerID:       next.ID,
		Name:           next.Name,
		DisconnectedAt: next.disconnectedAt,
	}
	if dl, ok := room.deadlines[next.ID]; ok {
		marker.ReconnectBy = dl.expiresAt
	}
	return marker
}

// StopAll cancels every pending deadline. Used on shutdown.
func (d *DisconnectMonitor) StopAll() {
	for _, room := range d.rooms.store.List() {
		room.mu.Lock()
		d.cancelAll(room)
		room.mu.Unlock()
	}
}

// Pending reports the number of armed deadlines in a room.
func (d *DisconnectMonitor) Pending(code string) int {
	room, err := d.rooms.lookup(code)
	if err != nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.deadlines)
}
