package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
	"roomhub/internal/core/services"
	"roomhub/internal/infrastructure/monitoring"
	"roomhub/pkg/config"
	"roomhub/pkg/utils"
	"roomhub/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server accepts and registers realtime connections. Each accepted connection
// gets its own Session; the Server only performs the handshake: credential
// verification, room existence, group registration and presence write.
//
// The connection is upgraded before handshake checks run so that failures can
// be reported with an application close code instead of an opaque HTTP error.
type Server struct {
	auth      services.AuthService
	presence  ports.PresenceRepository
	bus       ports.GroupBus
	directory ports.RoomDirectory
	router    *Router
	metrics   *monitoring.PrometheusCollector
	logger    *zap.SugaredLogger

	upgrader websocket.Upgrader

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int64

	connLimiter *rate.Limiter
	msgRate     rate.Limit
	msgBurst    int

	sessions sync.WaitGroup
}

func NewServer(
	cfg *config.Config,
	auth services.AuthService,
	presence ports.PresenceRepository,
	bus ports.GroupBus,
	directory ports.RoomDirectory,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		auth:         auth,
		presence:     presence,
		bus:          bus,
		directory:    directory,
		router:       NewRouter(presence, bus, metrics, logger),
		metrics:      metrics,
		logger:       logger,
		pingInterval: cfg.Signal.PingInterval,
		pongTimeout:  cfg.Signal.PongTimeout,
		writeTimeout: cfg.Signal.WriteTimeout,
	}

	allowed := cfg.Signal.AllowedOrigins
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}

	if cfg.RateLimiting.Enabled {
		cpm := cfg.RateLimiting.WebSocket.ConnectionsPerMinute
		s.connLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cpm)), cpm)
		s.msgRate = rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond)
		s.msgBurst = cfg.RateLimiting.WebSocket.Burst
		s.maxFrameSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}

	return s
}

// HandleConnection performs the join handshake for one connection and, on
// success, blocks until the session ends. The credential is read from the
// "token" query parameter.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request, roomID string) {
	if s.connLimiter != nil && !s.connLimiter.Allow() {
		s.metrics.ConnectionRejected("rate_limited")
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own HTTP error response.
		s.metrics.ConnectionRejected("upgrade_failed")
		s.logger.Warnw("connection upgrade failed", "room_id", roomID, "error", err)
		return
	}

	ctx := r.Context()

	identity, err := s.auth.VerifyCredential(ctx, token)
	if err != nil {
		s.logger.Infow("rejecting connection: invalid credential",
			"room_id", roomID,
			"error", err,
		)
		s.reject(conn, CloseInvalidCredential, "invalid_credential")
		return
	}

	if err := validation.ValidateRoomID(roomID); err != nil {
		s.logger.Infow("rejecting connection: bad room id",
			"room_id", roomID,
			"user_id", identity.ID,
			"error", err,
		)
		s.reject(conn, CloseRoomNotFound, "bad_room_id")
		return
	}
	room := domain.RoomID(roomID)

	exists, err := s.directory.RoomExists(ctx, room)
	if err != nil {
		s.logger.Errorw("room directory lookup failed",
			"room_id", roomID,
			"user_id", identity.ID,
			"error", err,
		)
		s.reject(conn, CloseRegistrationFailed, "directory_unavailable")
		return
	}
	if !exists {
		s.reject(conn, CloseRoomNotFound, "room_not_found")
		return
	}

	handle := domain.ConnectionHandle(utils.GenerateConnectionHandle())

	sub, err := s.bus.Join(ctx, string(room), handle)
	if err != nil {
		s.logger.Errorw("group registration failed",
			"room_id", roomID,
			"user_id", identity.ID,
			"error", err,
		)
		s.reject(conn, CloseRegistrationFailed, "group_join_failed")
		return
	}

	start := time.Now()
	count, err := s.presence.AddMember(ctx, room, identity, handle)
	s.metrics.ObservePresenceOp("add_member", time.Since(start))
	if err != nil {
		sub.Close()
		s.logger.Errorw("presence registration failed",
			"room_id", roomID,
			"user_id", identity.ID,
			"error", err,
		)
		s.reject(conn, CloseRegistrationFailed, "presence_write_failed")
		return
	}

	session := &Session{
		conn:         conn,
		room:         room,
		identity:     identity,
		handle:       handle,
		presence:     s.presence,
		bus:          s.bus,
		sub:          sub,
		router:       s.router,
		metrics:      s.metrics,
		logger:       s.logger,
		pingInterval: s.pingInterval,
		pongTimeout:  s.pongTimeout,
		writeTimeout: s.writeTimeout,
		maxFrameSize: s.maxFrameSize,
		state:        stateJoined,
		joinCount:    count,
		writerDone:   make(chan struct{}),
	}
	if s.msgRate > 0 {
		session.msgLimiter = rate.NewLimiter(s.msgRate, s.msgBurst)
	}

	s.logger.Infow("session established",
		"room_id", roomID,
		"user_id", identity.ID,
		"username", identity.Username,
		"handle", handle,
		"member_count", count,
	)

	s.sessions.Add(1)
	defer s.sessions.Done()
	session.run(ctx)
}

// NotifyRoomDeleted tells every session in the room that the room is gone and
// forces their connections closed with the room-deleted close code.
func (s *Server) NotifyRoomDeleted(ctx context.Context, room domain.RoomID) error {
	notice := ports.BusEvent{
		Kind:    ports.BusEventData,
		Payload: NotificationFrame("warning", "This room has been deleted."),
	}
	if err := s.bus.Publish(ctx, string(room), notice); err != nil {
		return err
	}
	s.metrics.Broadcast(string(OutboundNotification))

	closeEvent := ports.BusEvent{Kind: ports.BusEventClose, CloseCode: CloseRoomDeleted}
	return s.bus.Publish(ctx, string(room), closeEvent)
}

// NotifyAdminTransfer announces a change of room ownership to the group.
func (s *Server) NotifyAdminTransfer(ctx context.Context, room domain.RoomID, newAdmin domain.UserIdentity) error {
	notice := ports.BusEvent{
		Kind:    ports.BusEventData,
		Payload: NotificationFrame("info", newAdmin.Username+" is now the room admin."),
	}
	if err := s.bus.Publish(ctx, string(room), notice); err != nil {
		return err
	}
	s.metrics.Broadcast(string(OutboundNotification))
	return nil
}

// Shutdown waits for in-flight sessions to finish or the context to expire.
// The HTTP listener must already be closed so no new sessions arrive.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) reject(conn *websocket.Conn, code int, reason string) {
	s.metrics.ConnectionRejected(reason)
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	conn.Close()
}
