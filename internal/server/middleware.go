package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const maxUsernameLength = 20

// RateLimiter implements per-connection rate limiting using a sliding window
// Why sliding window: a burst at a window edge cannot double the allowance
// Why per-connection: one noisy client must not throttle the rest of its room
type RateLimiter struct {
	maxRequests int                    // Maximum requests allowed per window
	window      time.Duration          // Time window for rate limiting
	requests    map[string][]time.Time // connectionID -> timestamps of recent requests
	mu          sync.Mutex             // Protects the requests map
}

// NewRateLimiter creates a new rate limiter
// maxRequests: number of messages allowed per window
// window: duration of the sliding window (1 second for RATE_LIMIT_PER_SECOND)
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether the connection may send another message now
// Returns false once maxRequests messages fall inside the last window
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	// Keep only timestamps still inside the window
	timestamps := r.requests[connectionID]
	recent := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.maxRequests {
		// Store the filtered list so the map does not grow while throttled
		r.requests[connectionID] = recent
		return false
	}

	r.requests[connectionID] = append(recent, now)
	return true
}

// Cleanup drops connections with no request inside the window
// Called from the maintenance ticker
// Why: a socket that closed without RemoveConnection would otherwise stay forever
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for connID, timestamps := range r.requests {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(r.requests, connID)
		}
	}
}

// RemoveConnection forgets a connection at once; called when its socket closes
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

// ConnectionHealth tracks the last message time of each connection so idle
// sockets can be swept
// Why separate from RateLimiter: idle detection and abuse prevention have
// different windows and different owners
type ConnectionHealth struct {
	lastActivity map[string]time.Time // connectionID -> last message time
	mu           sync.RWMutex         // Sweeps read, every message writes
}

// NewConnectionHealth creates a new connection health tracker
func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

// UpdateActivity records that a connection is alive
// Called on every inbound frame, including ones later rejected
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = time.Now()
}

// IsInactive is false for connections that were never seen.
func (h *ConnectionHealth) IsInactive(connectionID string, timeout time.Duration) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lastActivity, exists := h.lastActivity[connectionID]
	if !exists {
		// Not tracked yet, so not idle
		return false
	}
	return time.Since(lastActivity) > timeout
}

// GetInactiveConnections returns every connection idle longer than timeout
// The caller closes the sockets; closing them removes the entries
func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inactive := make([]string, 0)
	now := time.Now()
	for connID, lastActivity := range h.lastActivity {
		if now.Sub(lastActivity) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

// RemoveConnection stops tracking a connection when its socket closes
func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

var validMessageTypes = map[string]bool{
	CmdPing:              true,
	CmdRegisterUser:      true,
	CmdCreateRoom:        true,
	CmdJoinRoom:          true,
	CmdStartGame:         true,
	CmdRandomizeTeams:    true,
	CmdSwapRequest:       true,
	CmdSwapResponse:      true,
	CmdConfirmTeams:      true,
	CmdAskCard:           true,
	CmdMakeClaim:         true,
	CmdTogglePause:       true,
	CmdDeclareWinner:     true,
	CmdLeaveRoom:         true,
	CmdLeaveGame:         true,
	CmdBackToLobby:       true,
	CmdPlayAgain:         true,
	CmdForceRedistribute: true,
	CmdInviteToGame:      true,
	CmdInviteResponse:    true,
}

// ValidateMessageType checks if a message type is recognized
// Why: a typo gets a clear INVALID_MESSAGE_TYPE instead of silence
func ValidateMessageType(msgType string) error {
	if !validMessageTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

// ValidateUsername checks a display name. Surrounding whitespace is ignored.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return fmt.Errorf("USERNAME_INVALID: Username cannot be empty")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return fmt.Errorf("USERNAME_INVALID: Username too long (max %d characters)", maxUsernameLength)
	}
	return nil
}
