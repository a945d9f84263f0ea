package domain

type RoomID string

// Room metadata is owned by the external Room Directory; the engine only ever
// asks whether a room id exists. The struct is carried for control-plane
// notifications, never persisted here.
type Room struct {
	ID      RoomID
	Name    string
	OwnerID UserID
}

// ConnectionHandle names exactly one live connection's delivery address on the
// group bus. Unique per live connection, invalidated on close, never reused.
type ConnectionHandle string
