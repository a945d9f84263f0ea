package ports

import (
	"context"
	"encoding/json"

	"roomhub/internal/core/domain"
)

// BusEventKind discriminates what a subscriber should do with a bus event.
type BusEventKind string

const (
	// BusEventData carries an outbound wire frame to write to the client.
	BusEventData BusEventKind = "data"
	// BusEventClose forces the connection closed with CloseCode.
	BusEventClose BusEventKind = "close"
)

type BusEvent struct {
	Kind      BusEventKind    `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CloseCode int             `json:"close_code,omitempty"`
}

// Subscription delivers events published to a joined group and events sent
// directly to the subscriber's connection handle. Close leaves the group and
// releases the underlying transport; the Events channel is closed afterwards.
type Subscription interface {
	Events() <-chan BusEvent
	Close() error
}

// GroupBus is the fan-out transport between engine instances. Delivery is
// best-effort and unordered across publishers; the engine treats it as
// infrastructure.
type GroupBus interface {
	Join(ctx context.Context, group string, handle domain.ConnectionHandle) (Subscription, error)
	Publish(ctx context.Context, group string, event BusEvent) error
	Send(ctx context.Context, handle domain.ConnectionHandle, event BusEvent) error
}

// RoomDirectory is the external service owning room metadata. The engine only
// reads existence at connection time.
type RoomDirectory interface {
	RoomExists(ctx context.Context, id domain.RoomID) (bool, error)
}
