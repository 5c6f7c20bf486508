package events_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/events"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []netsync.Snapshot
	failing  bool
	closed   bool
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return eris.New("broken pipe")
	}
	s, err := netsync.UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	c.messages = append(c.messages, s)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []netsync.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]netsync.Snapshot(nil), c.messages...)
}

func newHub(t *testing.T) *events.Hub {
	t.Helper()
	h := events.NewHub(0, events.WithLogger(zerolog.Nop()))
	t.Cleanup(h.Shutdown)
	return h
}

func publish(t *testing.T, h *events.Hub, s netsync.Snapshot) {
	t.Helper()
	require.NoError(t, h.Publish(context.Background(), s))
}

var (
	keyA = types.Key{X: 1}
	keyB = types.Key{X: 2}
)

func TestHub_CoalescesPerMachineUntilFlush(t *testing.T) {
	h := newHub(t)
	conn := &fakeConn{}
	h.Register(conn)

	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 1})
	publish(t, h, netsync.Snapshot{Key: keyB, Seq: 2})
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 3})
	assert.Equal(t, 2, h.QueueLength())
	assert.Empty(t, conn.received(), "nothing is written before the flush")

	h.Flush()
	got := conn.received()
	require.Len(t, got, 2)
	assert.Equal(t, keyA, got[0].Key)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, keyB, got[1].Key)
	assert.Equal(t, 0, h.QueueLength())

	h.Flush()
	assert.Len(t, conn.received(), 2, "an empty flush writes nothing")
}

func TestHub_ReplaysLatestSnapshotsOnRegister(t *testing.T) {
	h := newHub(t)
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 1})
	publish(t, h, netsync.Snapshot{Key: keyB, Seq: 2})
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 3})

	late := &fakeConn{}
	h.Register(late)
	seqs := map[types.Key]uint64{}
	for _, s := range late.received() {
		seqs[s.Key] = s.Seq
	}
	assert.DeepEqual(t, map[types.Key]uint64{keyA: 3, keyB: 2}, seqs)

	bz, ok := h.Latest(keyA)
	require.True(t, ok)
	latest, err := netsync.UnmarshalSnapshot(bz)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.Seq)

	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 4, Removed: true})
	_, ok = h.Latest(keyA)
	assert.False(t, ok)

	later := &fakeConn{}
	h.Register(later)
	require.Len(t, later.received(), 1)
	assert.Equal(t, keyB, later.received()[0].Key)
}

func TestHub_RegisterDoesNotDuplicateQueuedSnapshots(t *testing.T) {
	h := newHub(t)
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 1})
	publish(t, h, netsync.Snapshot{Key: keyB, Seq: 2})

	conn := &fakeConn{}
	h.Register(conn)
	require.Len(t, conn.received(), 2)

	publish(t, h, netsync.Snapshot{Key: keyB, Seq: 3})
	h.Flush()

	got := conn.received()
	require.Len(t, got, 3, "keyA is not written again, the newer keyB is")
	assert.Equal(t, keyB, got[2].Key)
	assert.Equal(t, uint64(3), got[2].Seq)

	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 4})
	h.Flush()
	assert.Len(t, conn.received(), 4)
}

func TestHub_OversizedSnapshotEvictsCachedOne(t *testing.T) {
	h := newHub(t)
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 1})
	_, ok := h.Latest(keyA)
	require.True(t, ok)

	state := tag.New()
	state.SetString("Blob", strings.Repeat("x", 16*1024))
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 2, State: state})
	_, ok = h.Latest(keyA)
	assert.False(t, ok)
}

func TestHub_DropsFailingConnections(t *testing.T) {
	h := newHub(t)
	healthy, broken := &fakeConn{}, &fakeConn{failing: true}
	h.Register(healthy)
	h.Register(broken)
	assert.Equal(t, 2, h.ConnectionAmount())

	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 1})
	h.Flush()

	assert.Equal(t, 1, h.ConnectionAmount())
	assert.True(t, broken.closed)
	assert.Len(t, healthy.received(), 1)

	h.Unregister(healthy)
	assert.Equal(t, 0, h.ConnectionAmount())
	assert.True(t, healthy.closed)
}

func TestHub_Shutdown(t *testing.T) {
	h := events.NewHub(0, events.WithLogger(zerolog.Nop()))
	conn := &fakeConn{}
	h.Register(conn)

	h.Shutdown()
	assert.True(t, conn.closed)
	assert.ErrorContains(t, h.Publish(context.Background(), netsync.Snapshot{}), "shut down")
	h.Flush()
	h.Shutdown()
}

func TestHub_WebSocketStream(t *testing.T) {
	h := newHub(t)
	publish(t, h, netsync.Snapshot{Key: keyA, Seq: 1})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/events", websocket.New(h.NewWebSocketHandler()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	ws, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	readSnapshot := func() netsync.Snapshot {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		mode, bz, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, gorilla.TextMessage, mode)
		s, err := netsync.UnmarshalSnapshot(bz)
		require.NoError(t, err)
		return s
	}

	assert.Equal(t, keyA, readSnapshot().Key, "replayed on connect")

	publish(t, h, netsync.Snapshot{Key: keyB, Seq: 2})
	h.Flush()
	assert.Equal(t, keyB, readSnapshot().Key)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return h.ConnectionAmount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
