package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
	"roomhub/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Router relays connection-negotiation payloads point-to-point between two
// members of a room. It is stateless: every call resolves the target's
// connection handle from the presence store, so it works even while member
// count broadcasts are stale. Delivery is fire-and-forget; a missing target
// is logged and dropped, never surfaced to the sender. A self-targeted relay
// returns domain.ErrSelfRelay so callers can flag the misbehaving client.
type Router struct {
	presence ports.PresenceRepository
	bus      ports.GroupBus
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger
}

func NewRouter(presence ports.PresenceRepository, bus ports.GroupBus, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Router {
	return &Router{
		presence: presence,
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
	}
}

// Relay annotates the payload with the sender's identity and delivers it to
// the target user's current connection. The payload is forwarded verbatim
// apart from the added sender_user_id and sender_username fields.
func (r *Router) Relay(ctx context.Context, room domain.RoomID, from domain.UserIdentity, to domain.UserID, payload json.RawMessage) error {
	if to == "" {
		r.metrics.RelayDropped("missing_target")
		r.logger.Warnw("dropping relay without target",
			"room_id", room,
			"from_user", from.ID,
		)
		return nil
	}

	if to == from.ID {
		r.metrics.RelayDropped("self_target")
		return domain.ErrSelfRelay
	}

	handle, err := r.presence.HandleFor(ctx, room, to)
	if errors.Is(err, domain.ErrMemberNotFound) {
		r.metrics.RelayDropped("target_absent")
		r.logger.Warnw("relay target not present in room",
			"room_id", room,
			"from_user", from.ID,
			"target_user", to,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve relay target: %w", err)
	}

	annotated, err := annotateSender(payload, from)
	if err != nil {
		return fmt.Errorf("failed to annotate relay payload: %w", err)
	}

	if err := r.bus.Send(ctx, handle, ports.BusEvent{Kind: ports.BusEventData, Payload: annotated}); err != nil {
		return fmt.Errorf("failed to deliver relay: %w", err)
	}

	r.metrics.RelayDelivered()
	return nil
}

func annotateSender(payload json.RawMessage, from domain.UserIdentity) (json.RawMessage, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	fields["sender_user_id"] = string(from.ID)
	fields["sender_username"] = from.Username
	return json.Marshal(fields)
}
