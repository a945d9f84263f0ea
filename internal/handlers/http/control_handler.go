package http

import (
	"net/http"

	"roomhub/internal/core/domain"
	"roomhub/internal/infrastructure/monitoring"
	"roomhub/internal/infrastructure/signal"
	"roomhub/pkg/errors"
	"roomhub/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DirectoryInvalidator drops cached room-existence entries. Implemented by
// the HTTP room directory; the in-memory directory needs no invalidation.
type DirectoryInvalidator interface {
	InvalidateRoom(id domain.RoomID)
}

// ControlHandler exposes the realtime endpoint plus the small control-plane
// API the room service calls into: room deletion and admin transfer hooks.
type ControlHandler struct {
	signal      *signal.Server
	health      *monitoring.HealthChecker
	invalidator DirectoryInvalidator
	logger      *zap.SugaredLogger
}

func NewControlHandler(signalServer *signal.Server, health *monitoring.HealthChecker, invalidator DirectoryInvalidator, logger *zap.SugaredLogger) *ControlHandler {
	return &ControlHandler{
		signal:      signalServer,
		health:      health,
		invalidator: invalidator,
		logger:      logger,
	}
}

// SetupRoutes registers routes. The realtime endpoint authenticates via the
// token query parameter inside the handshake, so authMiddleware guards only
// the control-plane group.
func (h *ControlHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.GET("/ws/rooms/:id", h.Connect)
	router.GET("/health", h.Health)

	api := router.Group("/api/v1/rooms", authMiddleware)
	{
		api.POST("/:id/deleted", h.RoomDeleted)
		api.POST("/:id/admin-transferred", h.AdminTransferred)
	}
}

func (h *ControlHandler) Connect(c *gin.Context) {
	h.signal.HandleConnection(c.Writer, c.Request, c.Param("id"))
}

func (h *ControlHandler) RoomDeleted(c *gin.Context) {
	roomID := c.Param("id")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	room := domain.RoomID(roomID)

	if h.invalidator != nil {
		h.invalidator.InvalidateRoom(room)
	}

	if err := h.signal.NotifyRoomDeleted(c.Request.Context(), room); err != nil {
		h.logger.Errorw("failed to broadcast room deletion", "room_id", room, "error", err)
		c.Error(errors.NewInternalError("failed to notify room members"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"room_id": room})
}

type AdminTransferredRequest struct {
	NewAdminID       string `json:"new_admin_id" binding:"required,max=64"`
	NewAdminUsername string `json:"new_admin_username" binding:"required,min=3,max=50"`
}

func (h *ControlHandler) AdminTransferred(c *gin.Context) {
	roomID := c.Param("id")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	var req AdminTransferredRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	newAdmin := domain.UserIdentity{
		ID:       domain.UserID(req.NewAdminID),
		Username: req.NewAdminUsername,
	}
	if err := h.signal.NotifyAdminTransfer(c.Request.Context(), domain.RoomID(roomID), newAdmin); err != nil {
		h.logger.Errorw("failed to broadcast admin transfer", "room_id", roomID, "error", err)
		c.Error(errors.NewInternalError("failed to notify room members"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"room_id": roomID, "new_admin_id": req.NewAdminID})
}

func (h *ControlHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
