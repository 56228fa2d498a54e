// internal/realtime/handler.go

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Mobile clients send no Origin; token auth gates access
		return true
	},
}

// FrameHandler consumes inbound frames of one connection, in arrival order.
type FrameHandler interface {
	HandleFrame(ctx context.Context, userID int64, data []byte)
}

// FrameHandlerFunc adapts a function to FrameHandler
type FrameHandlerFunc func(ctx context.Context, userID int64, data []byte)

func (f FrameHandlerFunc) HandleFrame(ctx context.Context, userID int64, data []byte) {
	f(ctx, userID, data)
}

// ConnectHook runs after the acknowledgment frame has been queued.
type ConnectHook func(ctx context.Context, userID int64)

// Handler upgrades authenticated requests and binds the connection to a registry
type Handler struct {
	registry  *Registry
	resolver  auth.CredentialResolver
	frames    FrameHandler
	onConnect ConnectHook
	logger    *zap.Logger
}

// HandlerOption configures optional Handler behavior
type HandlerOption func(h *Handler)

// WithFrameHandler routes inbound frames to fh. Without one, inbound frames are read and dropped.
func WithFrameHandler(fh FrameHandler) HandlerOption {
	return func(h *Handler) { h.frames = fh }
}

// WithConnectHook runs hook for every accepted connection
func WithConnectHook(hook ConnectHook) HandlerOption {
	return func(h *Handler) { h.onConnect = hook }
}

func NewHandler(registry *Registry, resolver auth.CredentialResolver, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		resolver: resolver,
		logger:   logger.With(zap.String("registry", registry.Name())),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ack is the first frame of every accepted connection
type Ack struct {
	Message string `json:"message"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, authErr := h.resolver.Resolve(r.Context(), auth.WebSocketToken(r))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	if authErr != nil {
		h.logger.Warn("websocket connection rejected", zap.Error(authErr))
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			time.Now().Add(writeWait),
		)
		conn.Close()
		return
	}

	client := NewClient(conn, userID, h.logger)

	// The ack is queued before the client becomes reachable through the registry
	ack, _ := json.Marshal(Ack{Message: fmt.Sprintf("Connected to %s websocket.", h.registry.Name())})
	if err := client.Send(ack); err != nil {
		h.logger.Warn("ack not delivered", zap.Int64("user_id", userID), zap.Error(err))
	}

	h.registry.Register(userID, client)
	go client.writePump()

	// Persistence triggered by this connection must outlive it
	ctx := context.WithoutCancel(r.Context())

	if h.onConnect != nil {
		h.onConnect(ctx, userID)
	}

	defer func() {
		h.registry.Unregister(userID, client)
		client.Close()
	}()

	client.readPump(func(data []byte) {
		if h.frames == nil {
			return
		}
		h.frames.HandleFrame(ctx, userID, data)
	})
}
