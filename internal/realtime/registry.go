// internal/realtime/registry.go

package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
)

var (
	ErrOffline    = fmt.Errorf("%w: user not connected", apperr.ErrDelivery)
	ErrConnBroken = fmt.Errorf("%w: connection closed", apperr.ErrDelivery)
	ErrBufferFull = fmt.Errorf("%w: send buffer full", apperr.ErrDelivery)
)

// Conn is a live connection owned by the registry while registered.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Registry maps a user to at most one live connection.
// All operations take the same lock, so they are linearizable per user.
type Registry struct {
	name   string
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[int64]Conn
}

func NewRegistry(name string, logger *zap.Logger) *Registry {
	return &Registry{
		name:   name,
		logger: logger.With(zap.String("registry", name)),
		conns:  make(map[int64]Conn),
	}
}

func (r *Registry) Name() string { return r.name }

// Register stores conn for userID. A previous connection is closed and forgotten.
func (r *Registry) Register(userID int64, conn Conn) {
	r.mu.Lock()
	old, replaced := r.conns[userID]
	r.conns[userID] = conn
	total := len(r.conns)
	if replaced && old != conn {
		old.Close()
	}
	r.mu.Unlock()

	activeConnections.WithLabelValues(r.name).Set(float64(total))
	r.logger.Info("user connected",
		zap.Int64("user_id", userID),
		zap.Bool("replaced", replaced),
		zap.Int("total", total),
	)
}

// Unregister removes userID only while conn is still the stored connection.
// A stale connection from an earlier registration gets false and changes nothing.
func (r *Registry) Unregister(userID int64, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	total := len(r.conns)
	r.mu.Unlock()

	activeConnections.WithLabelValues(r.name).Set(float64(total))
	r.logger.Info("user disconnected", zap.Int64("user_id", userID), zap.Int("total", total))
	return true
}

// Push makes one send attempt of event to userID. Failures are logged and returned, never retried.
func (r *Registry) Push(userID int64, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.PushRaw(userID, data)
}

// PushRaw is Push for an already encoded frame.
func (r *Registry) PushRaw(userID int64, data []byte) error {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	if !ok {
		r.mu.RUnlock()
		pushTotal.WithLabelValues(r.name, "offline").Inc()
		return ErrOffline
	}
	err := conn.Send(data)
	r.mu.RUnlock()

	if err != nil {
		pushTotal.WithLabelValues(r.name, "failed").Inc()
		r.logger.Warn("push failed", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	pushTotal.WithLabelValues(r.name, "sent").Inc()
	return nil
}

// Broadcast pushes event to every connected user and returns how many sends succeeded.
func (r *Registry) Broadcast(event interface{}) int {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("marshal broadcast", zap.Error(err))
		return 0
	}

	sent := 0
	for _, userID := range r.Connected() {
		if r.PushRaw(userID, data) == nil {
			sent++
		}
	}
	return sent
}

// IsConnected reports whether userID has a live connection
func (r *Registry) IsConnected(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Connected returns a snapshot of connected user ids
func (r *Registry) Connected() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Shutdown closes every connection and leaves the registry empty.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for _, conn := range r.conns {
		conn.Close()
	}
	r.conns = make(map[int64]Conn)
	r.mu.Unlock()

	activeConnections.WithLabelValues(r.name).Set(0)
}
