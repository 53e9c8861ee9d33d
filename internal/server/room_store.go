package server

import (
	"errors"
	"sync"
)

var ErrRoomCodeTaken = errors.New("ROOM_CODE_TAKEN: Room code is already in use")

// RoomStore is the directory of live rooms. Implementations must be safe for
// concurrent use; callers that hold a room lock may call Delete.
type RoomStore interface {
	Insert(room *Room) error
	Get(code string) (*Room, bool)
	Delete(code string)
	List() []*Room
	Len() int
}

type MemoryRoomStore struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{
		rooms: make(map[string]*Room),
	}
}

func (s *MemoryRoomStore) Insert(room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.Code]; exists {
		return ErrRoomCodeTaken
	}
	s.rooms[room.Code] = room
	return nil
}

func (s *MemoryRoomStore) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[code]
	return room, ok
}

func (s *MemoryRoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

func (s *MemoryRoomStore) List() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (s *MemoryRoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
