package domain

type UserID string

// UserIdentity is resolved from an access token once at connection time and is
// immutable for the lifetime of a session.
type UserIdentity struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// SystemUsername attributes join/leave announcements and other
// engine-generated chat messages.
const SystemUsername = "System"
