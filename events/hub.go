// Package events streams machine snapshots to websocket observers. Snapshots published during a
// tick are queued, coalesced per machine and written out when the tick flushes the hub. The latest
// snapshot of every machine is cached so new observers and HTTP readers can catch up.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coocood/freecache"
	"github.com/gofiber/contrib/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/types"
)

const (
	writeDeadline        = 5 * time.Second
	shutdownPollInterval = 200 * time.Millisecond

	DefaultCacheBytes = 16 * 1024 * 1024
	// MinCacheBytes keeps the largest cacheable snapshot, 1/1024 of the cache, at 8KB.
	MinCacheBytes = 8 * 1024 * 1024
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// connAndDone is sent into the hub loop together with a channel the loop closes once it handled
// the connection.
type connAndDone struct {
	conn Conn
	done chan struct{}
}

type queued struct {
	key  types.Key
	data []byte
}

type Hub struct {
	// Every connection maps to the queued keys it already received through the replay on
	// register. Those are skipped at the next flush.
	connections map[Conn]map[types.Key]struct{}
	queue       []queued
	pending     map[types.Key]int
	cache       *freecache.Cache
	logger      zerolog.Logger

	broadcast              chan queued
	flush                  chan chan struct{}
	register               chan connAndDone
	unregister             chan connAndDone
	getQueueLength         chan chan int
	getAmountOfConnections chan chan int
	shutdown               chan struct{}
	stopped                chan struct{}
	isRunning              atomic.Bool
}

type Option func(*Hub)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub starts a hub whose snapshot cache holds up to cacheBytes.
func NewHub(cacheBytes int, opts ...Option) *Hub {
	h := &Hub{
		connections:            make(map[Conn]map[types.Key]struct{}),
		queue:                  make([]queued, 0),
		pending:                make(map[types.Key]int),
		cache:                  freecache.NewCache(max(cacheBytes, MinCacheBytes)),
		logger:                 log.Logger,
		broadcast:              make(chan queued),
		flush:                  make(chan chan struct{}),
		register:               make(chan connAndDone),
		unregister:             make(chan connAndDone),
		getQueueLength:         make(chan chan int),
		getAmountOfConnections: make(chan chan int),
		shutdown:               make(chan struct{}),
		stopped:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.isRunning.Store(true)
	go h.run()
	return h
}

// Publish makes s the cached latest snapshot of its machine and queues it for the next flush.
func (h *Hub) Publish(ctx context.Context, s netsync.Snapshot) error {
	data, err := s.Marshal()
	if err != nil {
		return eris.Wrapf(err, "failed to encode snapshot of %s", s.Key)
	}
	h.cacheLatest(s, data)

	select {
	case h.broadcast <- queued{key: s.Key, data: data}:
		return nil
	case <-h.stopped:
		return eris.New("event hub is shut down")
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "failed to queue snapshot")
	}
}

// Flush writes the queued snapshots to every connection and blocks until all writes finished or
// timed out.
func (h *Hub) Flush() {
	done := make(chan struct{})
	select {
	case h.flush <- done:
		<-done
	case <-h.stopped:
	}
}

// Latest returns the encoded latest snapshot of the machine at key.
func (h *Hub) Latest(key types.Key) ([]byte, bool) {
	bz, err := h.cache.Get(cacheKey(key))
	if err != nil {
		return nil, false
	}
	return bz, true
}

func (h *Hub) QueueLength() int {
	ch := make(chan int)
	h.getQueueLength <- ch
	return <-ch
}

func (h *Hub) ConnectionAmount() int {
	ch := make(chan int)
	h.getAmountOfConnections <- ch
	return <-ch
}

// Register adds conn and replays the cached snapshots to it.
func (h *Hub) Register(conn Conn) {
	done := make(chan struct{})
	select {
	case h.register <- connAndDone{conn: conn, done: done}:
		<-done
	case <-h.stopped:
		_ = conn.Close()
	}
}

func (h *Hub) Unregister(conn Conn) {
	done := make(chan struct{})
	select {
	case h.unregister <- connAndDone{conn: conn, done: done}:
		<-done
	case <-h.stopped:
	}
}

// Shutdown closes every connection and blocks until the hub loop exited.
func (h *Hub) Shutdown() {
	select {
	case h.shutdown <- struct{}{}:
	case <-h.stopped:
		return
	}
	for h.isRunning.Load() {
		time.Sleep(shutdownPollInterval)
	}
}

func cacheKey(key types.Key) []byte {
	return []byte(key.String())
}

//nolint:gocognit
func (h *Hub) run() {
	defer func() {
		h.isRunning.Store(false)
		close(h.stopped)
	}()

	for {
		select {
		case ch := <-h.getAmountOfConnections:
			ch <- len(h.connections)
		case ch := <-h.getQueueLength:
			ch <- len(h.queue)
		case req := <-h.register:
			replayed := make(map[types.Key]struct{}, len(h.pending))
			for key := range h.pending {
				replayed[key] = struct{}{}
			}
			h.connections[req.conn] = replayed
			h.replay(req.conn)
			close(req.done)
		case req := <-h.unregister:
			h.closeConnection(req.conn)
			close(req.done)
		case q := <-h.broadcast:
			h.enqueue(q)
		case done := <-h.flush:
			h.writeQueue()
			close(done)
		case <-h.shutdown:
			for conn := range h.connections {
				h.closeConnection(conn)
			}
			return
		}
	}
}

// cacheLatest stores data as the latest snapshot of s.Key. A snapshot the cache cannot hold
// evicts the older one, so Latest never serves stale state.
func (h *Hub) cacheLatest(s netsync.Snapshot, data []byte) {
	key := cacheKey(s.Key)
	if s.Removed {
		h.cache.Del(key)
		return
	}
	if err := h.cache.Set(key, data, 0); err != nil {
		h.cache.Del(key)
		h.logger.Error().Err(err).
			Str("key", s.Key.String()).
			Int("bytes", len(data)).
			Msg("snapshot too large to cache, new observers will not see it until the next sync")
	}
}

func (h *Hub) enqueue(q queued) {
	// Connections that replayed an older snapshot of this machine still need the newer one.
	for _, replayed := range h.connections {
		delete(replayed, q.key)
	}

	// A newer snapshot of the same machine replaces the queued one in place.
	if i, ok := h.pending[q.key]; ok {
		h.queue[i].data = q.data
		return
	}
	h.pending[q.key] = len(h.queue)
	h.queue = append(h.queue, q)
}

func (h *Hub) writeQueue() {
	if len(h.queue) > 0 {
		var failed sync.Map
		var wg sync.WaitGroup
		for conn, replayed := range h.connections {
			wg.Add(1)
			go func(conn Conn, replayed map[types.Key]struct{}) {
				defer wg.Done()
				for _, q := range h.queue {
					if _, ok := replayed[q.key]; ok {
						continue
					}
					if err := write(conn, q.data); err != nil {
						h.logger.Error().Err(err).Msg("Connection was unregistered because of this error: " +
							eris.ToString(err, true))
						failed.Store(conn, true)
						return
					}
				}
			}(conn, replayed)
		}
		wg.Wait()
		failed.Range(func(conn, _ any) bool {
			h.closeConnection(conn.(Conn)) //nolint:forcetypeassert // only Conns are stored
			return true
		})
	}
	h.queue = h.queue[:0]
	clear(h.pending)
	for _, replayed := range h.connections {
		clear(replayed)
	}
}

func (h *Hub) replay(conn Conn) {
	it := h.cache.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if err := write(conn, entry.Value); err != nil {
			h.logger.Error().Err(err).Msg("failed to replay snapshots to new connection")
			h.closeConnection(conn)
			return
		}
	}
}

func (h *Hub) closeConnection(conn Conn) {
	if _, ok := h.connections[conn]; !ok {
		return
	}
	delete(h.connections, conn)
	if err := conn.Close(); err != nil {
		h.logger.Debug().Err(err).Msg("failed to close websocket connection")
	}
}

func write(conn Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return eris.Wrap(err, "failed to set write deadline")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return eris.Wrap(err, "failed to write snapshot")
	}
	return nil
}

// NewWebSocketHandler returns the fiber websocket handler for the snapshot stream. Messages sent
// by observers are ignored; the connection is unregistered once reading fails.
func (h *Hub) NewWebSocketHandler() func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		h.Register(conn)
		defer h.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.logger.Debug().Err(err).Msg("websocket read message failed")
				return
			}
		}
	}
}
