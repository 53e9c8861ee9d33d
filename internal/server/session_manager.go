package server

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrTokenNotFound = errors.New("TOKEN_NOT_FOUND: Invalid session token")

// SessionInfo is a registered identity. UserID is the stable id rooms use to
// recognise a returning player; Token is the secret the client keeps.
type SessionInfo struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type SessionManager struct {
	sessions map[string]SessionInfo // Token -> SessionInfo
	mu       sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]SessionInfo),
	}
}

// Register issues a new identity, or re-validates an existing token. A new
// name on an existing token replaces the stored one.
func (sm *SessionManager) Register(token, name string) (SessionInfo, error) {
	name = strings.TrimSpace(name)

	if token != "" {
		if name != "" {
			if err := ValidateUsername(name); err != nil {
				return SessionInfo{}, err
			}
		}
		sm.mu.Lock()
		defer sm.mu.Unlock()

		session, exists := sm.sessions[token]
		if !exists {
			return SessionInfo{}, ErrTokenNotFound
		}
		if name != "" {
			session.Name = name
			sm.sessions[token] = session
		}
		return session, nil
	}

	if err := ValidateUsername(name); err != nil {
		return SessionInfo{}, err
	}
	session := SessionInfo{
		Token:  uuid.New().String(),
		UserID: uuid.New().String(),
		Name:   name,
	}
	sm.StoreSession(session)
	return session, nil
}

func (sm *SessionManager) StoreSession(info SessionInfo) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[info.Token] = info
}

func (sm *SessionManager) GetSession(token string) (SessionInfo, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[token]
	if !exists {
		return SessionInfo{}, ErrTokenNotFound
	}

	return session, nil
}

func (sm *SessionManager) RemoveSession(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, token)
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
