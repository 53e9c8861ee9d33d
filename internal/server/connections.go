package server

import (
	"sync"

	"github.com/coder/websocket"

	"fish-server/internal/fish"
)

// PlayerConnection is what the transport knows about a socket: who is on the
// other end and which seat it currently speaks for.
type PlayerConnection struct {
	RoomCode string
	PlayerID fish.PlayerID
	UserID   string
	Name     string
}

func (pc PlayerConnection) InRoom() bool {
	return pc.RoomCode != "" && pc.PlayerID != ""
}

// ConnectionManager doubles as the presence directory: users maps a
// registered identity to the one connection currently speaking for it.
type ConnectionManager struct {
	connections map[string]*websocket.Conn  // connectionID → socket
	players     map[string]PlayerConnection // connectionID → player info
	users       map[string]string           // userID → connectionID
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		players:     make(map[string]PlayerConnection),
		users:       make(map[string]string),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

// RemoveConnection forgets the socket and returns the binding it had, so the
// caller can tell the room about it.
func (cm *ConnectionManager) RemoveConnection(id string) PlayerConnection {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	info := cm.players[id]
	delete(cm.connections, id)
	delete(cm.players, id)
	if info.UserID != "" && cm.users[info.UserID] == id {
		delete(cm.users, info.UserID)
	}
	return info
}

// SetUser attaches a registered identity to a connection. If the identity was
// live on another connection, that connection's id is returned.
func (cm *ConnectionManager) SetUser(connectionID, userID, name string) string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	previous := cm.users[userID]
	if previous == connectionID {
		previous = ""
	}
	cm.users[userID] = connectionID

	info := cm.players[connectionID]
	info.UserID = userID
	info.Name = name
	cm.players[connectionID] = info
	return previous
}

// Bind records the seat a connection plays.
func (cm *ConnectionManager) Bind(connectionID, roomCode string, playerID fish.PlayerID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	info := cm.players[connectionID]
	info.RoomCode = roomCode
	info.PlayerID = playerID
	cm.players[connectionID] = info
}

// Unbind clears the seat but keeps the identity.
func (cm *ConnectionManager) Unbind(connectionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if info, ok := cm.players[connectionID]; ok {
		info.RoomCode = ""
		info.PlayerID = ""
		cm.players[connectionID] = info
	}
}

func (cm *ConnectionManager) Binding(connectionID string) (PlayerConnection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	info, ok := cm.players[connectionID]
	return info, ok
}

// ConnectionForUser returns the live connection of a registered user, or "".
func (cm *ConnectionManager) ConnectionForUser(userID string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.users[userID]
}

func (cm *ConnectionManager) GetConnection(connectionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.connections[connectionID]
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// All returns the ids of every open socket.
func (cm *ConnectionManager) All() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	return ids
}
