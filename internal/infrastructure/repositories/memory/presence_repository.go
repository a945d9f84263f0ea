package memory

import (
	"context"
	"sync"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
)

type roomPresence struct {
	members map[domain.UserID]domain.UserIdentity
	handles map[domain.UserID]domain.ConnectionHandle
}

// MemoryPresenceRepository is a single-process presence store. The mutex
// stands in for the Redis implementation's transactional pipeline: the
// membership set and handle mapping always change together.
type MemoryPresenceRepository struct {
	rooms map[domain.RoomID]*roomPresence
	mu    sync.RWMutex
}

func NewMemoryPresenceRepository() ports.PresenceRepository {
	return &MemoryPresenceRepository{
		rooms: make(map[domain.RoomID]*roomPresence),
	}
}

func (r *MemoryPresenceRepository) AddMember(ctx context.Context, room domain.RoomID, user domain.UserIdentity, handle domain.ConnectionHandle) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rp, exists := r.rooms[room]
	if !exists {
		rp = &roomPresence{
			members: make(map[domain.UserID]domain.UserIdentity),
			handles: make(map[domain.UserID]domain.ConnectionHandle),
		}
		r.rooms[room] = rp
	}

	rp.members[user.ID] = user
	rp.handles[user.ID] = handle
	return int64(len(rp.members)), nil
}

func (r *MemoryPresenceRepository) RemoveMember(ctx context.Context, room domain.RoomID, user domain.UserID, handle domain.ConnectionHandle) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rp, exists := r.rooms[room]
	if !exists {
		return 0, nil
	}

	// Only the connection that owns the current handle may deregister the
	// user; a stale teardown after a reconnect is a no-op.
	if rp.handles[user] == handle {
		delete(rp.members, user)
		delete(rp.handles, user)
	}

	count := int64(len(rp.members))
	if count == 0 {
		delete(r.rooms, room)
	}
	return count, nil
}

func (r *MemoryPresenceRepository) MemberCount(ctx context.Context, room domain.RoomID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, exists := r.rooms[room]
	if !exists {
		return 0, nil
	}
	return int64(len(rp.members)), nil
}

func (r *MemoryPresenceRepository) HandleFor(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.ConnectionHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, exists := r.rooms[room]
	if !exists {
		return "", domain.ErrMemberNotFound
	}
	handle, exists := rp.handles[user]
	if !exists {
		return "", domain.ErrMemberNotFound
	}
	return handle, nil
}

func (r *MemoryPresenceRepository) MembersSnapshot(ctx context.Context, room domain.RoomID) ([]domain.UserIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, exists := r.rooms[room]
	if !exists {
		return nil, nil
	}

	members := make([]domain.UserIdentity, 0, len(rp.members))
	for _, identity := range rp.members {
		members = append(members, identity)
	}
	return members, nil
}
