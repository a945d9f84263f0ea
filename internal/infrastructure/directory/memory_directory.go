package directory

import (
	"context"
	"sync"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
)

// MemoryRoomDirectory is an in-process directory for tests and single-node
// setups where room metadata lives alongside the engine.
type MemoryRoomDirectory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
}

func NewMemoryRoomDirectory() *MemoryRoomDirectory {
	return &MemoryRoomDirectory{
		rooms: make(map[domain.RoomID]domain.Room),
	}
}

var _ ports.RoomDirectory = (*MemoryRoomDirectory)(nil)

func (d *MemoryRoomDirectory) RoomExists(ctx context.Context, id domain.RoomID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.rooms[id]
	return exists, nil
}

func (d *MemoryRoomDirectory) AddRoom(room domain.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[room.ID] = room
}

func (d *MemoryRoomDirectory) RemoveRoom(id domain.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, id)
}
