package realtime_test

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   error
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newRegistry() *realtime.Registry {
	return realtime.NewRegistry("test", zap.NewNop())
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	reg := newRegistry()
	first, second := &fakeConn{}, &fakeConn{}

	reg.Register(7, first)
	reg.Register(7, second)

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, 1, reg.Count())

	require.NoError(t, reg.Push(7, map[string]string{"type": "ping"}))
	assert.Equal(t, 0, first.count())
	assert.Equal(t, 1, second.count())
}

func TestStaleUnregisterKeepsNewerConnection(t *testing.T) {
	reg := newRegistry()
	stale, current := &fakeConn{}, &fakeConn{}

	reg.Register(3, stale)
	reg.Register(3, current)

	assert.False(t, reg.Unregister(3, stale))
	assert.True(t, reg.IsConnected(3))

	assert.True(t, reg.Unregister(3, current))
	assert.False(t, reg.IsConnected(3))
	assert.False(t, reg.Unregister(3, current))
}

func TestPushFailures(t *testing.T) {
	reg := newRegistry()

	err := reg.Push(99, map[string]string{"type": "chats"})
	assert.True(t, errors.Is(err, realtime.ErrOffline))
	assert.True(t, errors.Is(err, apperr.ErrDelivery))

	broken := &fakeConn{fail: realtime.ErrConnBroken}
	reg.Register(5, broken)
	err = reg.Push(5, map[string]string{"type": "chats"})
	assert.True(t, errors.Is(err, apperr.ErrDelivery))

	// failures are not retried and do not evict the connection
	assert.True(t, reg.IsConnected(5))
}

func TestPushEncodesJSON(t *testing.T) {
	reg := newRegistry()
	conn := &fakeConn{}
	reg.Register(1, conn)

	require.NoError(t, reg.Push(1, struct {
		Type    string `json:"type"`
		SubType string `json:"sub_type"`
	}{"connections-reload", "chat"}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(conn.frames[0], &got))
	assert.Equal(t, map[string]string{"type": "connections-reload", "sub_type": "chat"}, got)
}

func TestBroadcastAndSnapshot(t *testing.T) {
	reg := newRegistry()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{fail: realtime.ErrBufferFull}
	reg.Register(1, a)
	reg.Register(2, b)
	reg.Register(3, c)

	ids := reg.Connected()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{1, 2, 3}, ids)

	sent := reg.Broadcast(map[string]string{"type": "lobby", "event": "event-start"})
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestShutdownDropsAll(t *testing.T) {
	reg := newRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	reg.Register(1, a)
	reg.Register(2, b)

	reg.Shutdown()

	assert.Equal(t, 0, reg.Count())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}

func TestConcurrentRegisterPushUnregister(t *testing.T) {
	reg := newRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			conn := &fakeConn{}
			reg.Register(id%5, conn)
			_ = reg.Push(id%5, map[string]int64{"n": id})
			reg.Unregister(id%5, conn)
		}(int64(i))
	}
	wg.Wait()

	assert.LessOrEqual(t, reg.Count(), 5)
}
