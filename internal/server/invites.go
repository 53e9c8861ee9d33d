package server

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrInviteNotFound = errors.New("INVITE_NOT_FOUND: No pending invite for that room")
	ErrInviteSelf     = errors.New("INVALID_INVITE: Cannot invite yourself")
	ErrNotRegistered  = errors.New("NOT_REGISTERED: Register before inviting or being invited")
)

const defaultInviteTTL = 5 * time.Minute

type Invite struct {
	RoomCode     string
	FromUserID   string
	FromName     string
	TargetUserID string
	ExpiresAt    time.Time
}

type inviteKey struct {
	target string
	room   string
}

// InviteBook holds outstanding invites until they are answered or expire.
// A second invite to the same user for the same room replaces the first.
type InviteBook struct {
	invites map[inviteKey]Invite
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func NewInviteBook(ttl time.Duration, now func() time.Time) *InviteBook {
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	if now == nil {
		now = time.Now
	}
	return &InviteBook{
		invites: make(map[inviteKey]Invite),
		ttl:     ttl,
		now:     now,
	}
}

func (b *InviteBook) Add(inv Invite) Invite {
	b.mu.Lock()
	defer b.mu.Unlock()

	inv.ExpiresAt = b.now().Add(b.ttl)
	b.invites[inviteKey{target: inv.TargetUserID, room: inv.RoomCode}] = inv
	return inv
}

// Take removes and returns the invite, if it is still live.
func (b *InviteBook) Take(targetUserID, roomCode string) (Invite, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := inviteKey{target: targetUserID, room: roomCode}
	inv, ok := b.invites[key]
	if !ok {
		return Invite{}, ErrInviteNotFound
	}
	delete(b.invites, key)
	if b.now().After(inv.ExpiresAt) {
		return Invite{}, ErrInviteNotFound
	}
	return inv, nil
}

// Expire drops stale invites and reports how many went.
func (b *InviteBook) Expire() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	dropped := 0
	for key, inv := range b.invites {
		if now.After(inv.ExpiresAt) {
			delete(b.invites, key)
			dropped++
		}
	}
	return dropped
}

// ForgetRoom drops every invite to a room that no longer exists.
func (b *InviteBook) ForgetRoom(roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.invites {
		if key.room == roomCode {
			delete(b.invites, key)
		}
	}
}

func (b *InviteBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.invites)
}
