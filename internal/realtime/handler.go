package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultSendBuffer = 256

// Handler upgrades GET /ws and turns join messages into broadcaster registrations.
type Handler struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	sendBuffer  int
}

func NewHandler(b *Broadcaster, sendBuffer int, allowedOrigins []string) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Handler{
		broadcaster: b,
		sendBuffer:  sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "realtime"),
		zap.String("method", "ServeHTTP"),
	)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newWSConn(ws, h.sendBuffer)
	ctx := logger.WithFields(context.WithoutCancel(r.Context()), zap.String("conn_id", c.ID()))
	log = log.With(zap.String("conn_id", c.ID()))
	log.Debug("websocket connected")

	identity, _ := utils.IdentityFrom(r.Context())

	go c.writePump()
	err = c.readPump(func(raw []byte) {
		h.handleMessage(ctx, c, identity, raw)
	})
	if err != nil {
		log.Warn("websocket closed unexpectedly", zap.Error(err))
	}

	h.broadcaster.Unregister(c)
	log.Debug("websocket disconnected")
}

func (h *Handler) handleMessage(ctx context.Context, c Conn, identity utils.Identity, raw []byte) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "realtime"))

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		_ = c.Send(errorMessage("malformed message"))
		return
	}

	scope, reason := resolveJoin(msg, identity)
	if reason != "" {
		log.Info("join rejected", zap.String("type", msg.Type), zap.String("reason", reason))
		_ = c.Send(errorMessage(reason))
		return
	}

	if err := h.broadcaster.Register(c, scope); err != nil {
		_ = c.Send(errorMessage("server shutting down"))
		_ = c.Close()
		return
	}

	log.Debug("connection joined",
		zap.String("role", string(scope.Role)),
		zap.String("restaurant_id", scope.RestaurantID),
		zap.String("customer_id", scope.CustomerID),
	)
	_ = c.Send(ServerMessage{
		Type:         TypeJoined,
		RestaurantID: scope.RestaurantID,
		CustomerID:   scope.CustomerID,
	})
}

// resolveJoin maps a join message to a scope, or returns why it is refused.
func resolveJoin(msg ClientMessage, identity utils.Identity) (Scope, string) {
	rid := strings.TrimSpace(msg.RestaurantID)
	cid := strings.TrimSpace(msg.CustomerID)

	switch msg.Type {
	case TypeJoinRestaurant:
		if rid == "" {
			return Scope{}, "restaurantId is required"
		}
		if !identity.CanAccessRestaurant(rid) {
			return Scope{}, "not allowed to follow this restaurant"
		}
		return Scope{Role: RoleRestaurant, RestaurantID: rid}, ""
	case TypeJoinCustomer:
		if cid == "" {
			return Scope{}, "customerId is required"
		}
		return Scope{Role: RoleCustomer, RestaurantID: rid, CustomerID: cid}, ""
	}
	return Scope{}, "unknown message type " + msg.Type
}
