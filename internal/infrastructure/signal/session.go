package signal

import (
	"context"
	"encoding/json"
	"time"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
	"roomhub/internal/infrastructure/monitoring"
	"roomhub/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// sessionState tracks where a connection is in its lifecycle. Closed is
// always reached, including on failure paths.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticating
	stateValidating
	stateJoined
	stateActive
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateValidating:
		return "validating"
	case stateJoined:
		return "joined"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const cleanupTimeout = 5 * time.Second

// Session owns one accepted connection: it is the only goroutine pair that
// reads or writes the socket, and it mediates all presence and bus access on
// behalf of one user. Cross-session communication happens exclusively through
// the presence store and the group bus.
type Session struct {
	conn     *websocket.Conn
	room     domain.RoomID
	identity domain.UserIdentity
	handle   domain.ConnectionHandle

	presence ports.PresenceRepository
	bus      ports.GroupBus
	sub      ports.Subscription
	router   *Router
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int64
	msgLimiter   *rate.Limiter

	state      sessionState
	joinCount  int64
	writerDone chan struct{}
}

func (s *Session) group() string {
	return string(s.room)
}

func (s *Session) setState(next sessionState) {
	s.logger.Debugw("session state transition",
		"room_id", s.room,
		"user_id", s.identity.ID,
		"from", s.state.String(),
		"to", next.String(),
	)
	s.state = next
}

// run drives the Joined → Active → Closing → Closed portion of the lifecycle.
// The caller has already joined the group and written presence.
func (s *Session) run(ctx context.Context) {
	s.metrics.SessionOpened()
	defer s.teardown()

	go s.writePump()

	s.announceJoin(ctx)

	s.setState(stateActive)
	s.readPump(ctx)
}

// announceJoin broadcasts the join and the post-join member count to the
// whole group, then sends the list of other present users only to this
// connection so the client can start peer discovery.
func (s *Session) announceJoin(ctx context.Context) {
	s.broadcast(ctx, ChatFrame(s.identity.Username+" has joined.", domain.SystemUsername), OutboundMessage)
	s.broadcast(ctx, MemberCountFrame(s.joinCount), OutboundMemberCount)

	start := time.Now()
	members, err := s.presence.MembersSnapshot(ctx, s.room)
	s.metrics.ObservePresenceOp("members_snapshot", time.Since(start))
	if err != nil {
		s.logger.Warnw("failed to read members snapshot",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"error", err,
		)
		return
	}

	others := make([]domain.UserIdentity, 0, len(members))
	for _, member := range members {
		if member.ID != s.identity.ID {
			others = append(others, member)
		}
	}
	if len(others) == 0 {
		return
	}

	event := ports.BusEvent{Kind: ports.BusEventData, Payload: ParticipantsFrame(others)}
	if err := s.bus.Send(ctx, s.handle, event); err != nil {
		s.logger.Warnw("failed to send participants list",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"error", err,
		)
	}
}

// readPump decodes inbound frames until the connection breaks. Malformed or
// over-limit frames are dropped; they never close the connection.
func (s *Session) readPump(ctx context.Context) {
	if s.maxFrameSize > 0 {
		s.conn.SetReadLimit(s.maxFrameSize)
	}
	s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("connection read error",
					"room_id", s.room,
					"user_id", s.identity.ID,
					"error", err,
				)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

		if s.msgLimiter != nil && !s.msgLimiter.Allow() {
			s.logger.Warnw("inbound message rate exceeded, dropping frame",
				"room_id", s.room,
				"user_id", s.identity.ID,
			)
			continue
		}

		s.dispatch(ctx, data)
	}
}

func (s *Session) dispatch(ctx context.Context, data []byte) {
	env, err := DecodeInbound(data)
	if err != nil {
		s.logger.Warnw("dropping malformed frame",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"error", err,
		)
		return
	}
	s.metrics.InboundMessage(string(env.Type))

	switch env.Type {
	case InboundChatMessage:
		message, err := validation.ValidateChatMessage(env.Message, int(s.maxFrameSize))
		if err != nil {
			s.logger.Debugw("ignoring chat message",
				"room_id", s.room,
				"user_id", s.identity.ID,
				"reason", err,
			)
			return
		}
		s.broadcast(ctx, ChatFrame(message, s.identity.Username), OutboundMessage)

	case InboundOffer, InboundAnswer, InboundICECandidate:
		if err := s.router.Relay(ctx, s.room, s.identity, env.TargetUserID, env.Raw()); err != nil {
			// Recoverable per-message: the sender keeps its connection.
			s.logger.Warnw("signaling relay failed",
				"room_id", s.room,
				"user_id", s.identity.ID,
				"type", env.Type,
				"error", err,
			)
		}

	case InboundVideoStatus:
		if env.Status != VideoStatusStarted && env.Status != VideoStatusStopped {
			s.logger.Warnw("ignoring invalid video status",
				"room_id", s.room,
				"user_id", s.identity.ID,
				"status", env.Status,
			)
			return
		}
		s.broadcast(ctx, VideoStatusFrame(env.Status, s.identity), OutboundVideoStatus)

	default:
		// Unknown types are dropped silently: forward compatibility.
		s.logger.Debugw("dropping unknown frame type",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"type", env.Type,
		)
	}
}

// writePump is the sole writer on the connection. It fans bus events onto the
// socket and keeps the connection alive with pings. A close event from the
// bus (room deleted) forcibly terminates the connection.
func (s *Session) writePump() {
	defer close(s.writerDone)

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.sub.Events():
			if !ok {
				return
			}
			switch event.Kind {
			case ports.BusEventData:
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				if err := s.conn.WriteMessage(websocket.TextMessage, event.Payload); err != nil {
					s.logger.Infow("connection write error",
						"room_id", s.room,
						"user_id", s.identity.ID,
						"error", err,
					)
					// Unblock the read pump immediately instead of waiting
					// out its pong deadline.
					s.conn.Close()
					return
				}
			case ports.BusEventClose:
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				msg := websocket.FormatCloseMessage(event.CloseCode, "")
				s.conn.WriteMessage(websocket.CloseMessage, msg)
				s.conn.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown runs the full best-effort cleanup sequence: deregister presence,
// announce departure and a stopped status, broadcast the updated count, leave
// the group. Every step is attempted even if an earlier one fails; there is
// no client left to report failures to.
func (s *Session) teardown() {
	s.setState(stateClosing)

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	start := time.Now()
	count, err := s.presence.RemoveMember(ctx, s.room, s.identity.ID, s.handle)
	s.metrics.ObservePresenceOp("remove_member", time.Since(start))
	countKnown := err == nil
	if err != nil {
		// Stale presence entry until the user's next successful write.
		s.logger.Errorw("failed to remove member from presence",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"error", err,
		)
	}

	s.broadcast(ctx, ChatFrame(s.identity.Username+" has left.", domain.SystemUsername), OutboundMessage)

	// The user may have disconnected mid-stream.
	s.broadcast(ctx, VideoStatusFrame(VideoStatusStopped, s.identity), OutboundVideoStatus)

	if !countKnown {
		if c, err := s.presence.MemberCount(ctx, s.room); err == nil {
			count = c
			countKnown = true
		} else {
			s.logger.Warnw("failed to read member count during cleanup",
				"room_id", s.room,
				"error", err,
			)
		}
	}
	if countKnown {
		s.broadcast(ctx, MemberCountFrame(count), OutboundMemberCount)
	}

	if err := s.sub.Close(); err != nil {
		s.logger.Warnw("failed to leave group",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"error", err,
		)
	}

	<-s.writerDone
	s.conn.Close()

	s.setState(stateClosed)
	s.metrics.SessionClosed("session_ended")

	s.logger.Infow("session closed",
		"room_id", s.room,
		"user_id", s.identity.ID,
		"handle", s.handle,
	)
}

func (s *Session) broadcast(ctx context.Context, payload json.RawMessage, outboundType OutboundType) {
	event := ports.BusEvent{Kind: ports.BusEventData, Payload: payload}
	if err := s.bus.Publish(ctx, s.group(), event); err != nil {
		s.logger.Warnw("failed to publish to group",
			"room_id", s.room,
			"user_id", s.identity.ID,
			"type", outboundType,
			"error", err,
		)
		return
	}
	s.metrics.Broadcast(string(outboundType))
}
