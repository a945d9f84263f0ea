package ports

import (
	"context"

	"roomhub/internal/core/domain"
)

// PresenceRepository is the shared store of room membership. The membership
// set and the user-to-handle mapping are mutated together: an add is not
// complete until both are written. AddMember and RemoveMember return the
// post-mutation member count taken from the same atomic operation, so count
// broadcasts never race a re-read.
type PresenceRepository interface {
	// AddMember is idempotent: re-adding a user overwrites the handle, which
	// covers reconnect-before-cleanup races.
	AddMember(ctx context.Context, room domain.RoomID, user domain.UserIdentity, handle domain.ConnectionHandle) (int64, error)
	// RemoveMember deletes the user only while the stored handle still
	// belongs to the closing connection. A slow teardown racing a reconnect
	// leaves the newer registration intact. No-op if the user is absent or
	// the handle no longer matches; the returned count reflects whatever
	// state the store ended up in.
	RemoveMember(ctx context.Context, room domain.RoomID, user domain.UserID, handle domain.ConnectionHandle) (int64, error)
	MemberCount(ctx context.Context, room domain.RoomID) (int64, error)
	// HandleFor returns domain.ErrMemberNotFound if the user is not present.
	HandleFor(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.ConnectionHandle, error)
	MembersSnapshot(ctx context.Context, room domain.RoomID) ([]domain.UserIdentity, error)
}
