package server

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_RegisterNewUser(t *testing.T) {
	sm := NewSessionManager()

	session, err := sm.Register("", "  Alice ")
	require.NoError(t, err)

	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.UserID)
	assert.NotEqual(t, session.Token, session.UserID, "the token is the secret, the user id is public")
	assert.Equal(t, "Alice", session.Name)

	stored, err := sm.GetSession(session.Token)
	assert.NoError(t, err)
	assert.Equal(t, session, stored)
}

func TestSessionManager_RegisterInvalidName(t *testing.T) {
	sm := NewSessionManager()

	_, err := sm.Register("", "   ")
	assert.Error(t, err)

	_, err = sm.Register("", "this name is far too long to be accepted")
	assert.Error(t, err)

	assert.Equal(t, 0, sm.Count())
}

func TestSessionManager_RegisterExistingToken(t *testing.T) {
	sm := NewSessionManager()
	first, err := sm.Register("", "Alice")
	require.NoError(t, err)

	again, err := sm.Register(first.Token, "")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	renamed, err := sm.Register(first.Token, "Alicia")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, renamed.UserID)
	assert.Equal(t, "Alicia", renamed.Name)
	assert.Equal(t, 1, sm.Count())
}

func TestSessionManager_RenameIsValidated(t *testing.T) {
	sm := NewSessionManager()
	first, err := sm.Register("", "Alice")
	require.NoError(t, err)

	_, err = sm.Register(first.Token, strings.Repeat("x", 60))
	assert.ErrorContains(t, err, "USERNAME_INVALID")

	stored, err := sm.GetSession(first.Token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
}

func TestSessionManager_RegisterUnknownToken(t *testing.T) {
	sm := NewSessionManager()

	_, err := sm.Register("made-up", "Alice")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestSessionManager_StoreAndRemove(t *testing.T) {
	sm := NewSessionManager()
	sm.StoreSession(SessionInfo{Token: "temp-token", UserID: "user-1", Name: "Bob"})

	session, err := sm.GetSession("temp-token")
	assert.NoError(t, err)
	assert.Equal(t, "Bob", session.Name)

	sm.RemoveSession("temp-token")

	_, err = sm.GetSession("temp-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestSessionManager_ConcurrentRegister(t *testing.T) {
	sm := NewSessionManager()

	var wg sync.WaitGroup
	numGoroutines := 100
	tokens := make(chan string, numGoroutines)

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			session, err := sm.Register("", fmt.Sprintf("User%d", id))
			if err != nil {
				t.Errorf("register %d: %v", id, err)
				return
			}
			tokens <- session.Token
		}(i)
	}
	wg.Wait()
	close(tokens)

	assert.Equal(t, numGoroutines, sm.Count())

	wg.Add(numGoroutines)
	for token := range tokens {
		go func(token string) {
			defer wg.Done()
			sm.RemoveSession(token)
		}(token)
	}
	wg.Wait()

	assert.Equal(t, 0, sm.Count())
}
