package observer_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry"
	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/energy"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/observer"
	"pkg.world.dev/world-engine/foundry/recycler"
	"pkg.world.dev/world-engine/foundry/registry"
	"pkg.world.dev/world-engine/foundry/types"
	"pkg.world.dev/world-engine/foundry/world"
)

const waitFor = 5 * time.Second

var key = types.Key{Dim: 1, X: -5, Y: 70, Z: 12}

// run starts o and stops it when the test ends.
func run(t *testing.T, o *observer.Observer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		assert.NilError(t, <-done)
	})
}

// relay sends ev upstream, ticking the authoritative world until it was applied.
func relay(t *testing.T, tf *foundry.TestFoundry, o *observer.Observer, ev world.Event) (observer.Reply, error) {
	t.Helper()
	type result struct {
		reply observer.Reply
		err   error
	}
	results := make(chan result, 1)
	go func() {
		reply, err := o.Relay(context.Background(), ev)
		results <- result{reply: reply, err: err}
	}()
	for {
		select {
		case r := <-results:
			return r.reply, r.err
		default:
			tf.DoTick()
		}
	}
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := observer.New(machine.NewBlueprints(), nil, nil, "")
	assert.IsError(t, err)
}

func TestObserver_MirrorsWebSocketStreamAndRelays(t *testing.T) {
	tf := foundry.NewTestFoundry(t, nil)
	tf.StartWorld()

	localTicks := make(chan time.Time)
	o, err := observer.New(tf.Blueprints(), tf.Registry(),
		observer.WebSocketSource{URL: "ws://" + tf.BaseURL + "/events", Logger: zerolog.Nop()},
		"http://"+tf.BaseURL,
		observer.WithLogger(zerolog.Nop()),
		observer.WithTickChannel(localTicks),
	)
	require.NoError(t, err)
	assert.Equal(t, types.RolePresentation, o.Role())
	assert.DeepEqual(t, []string{recycler.Kind}, o.Blueprints())
	run(t, o)

	_, err = relay(t, tf, o, world.Place{Key: key, Kind: recycler.Kind})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.MachineCount() == 1 }, waitFor, 10*time.Millisecond)
	found := o.Inspect(key, func(m *machine.Machine) {
		assert.Equal(t, recycler.Kind, m.Kind())
	})
	assert.True(t, found)
	assert.DeepEqual(t, []types.Key{key}, o.Keys())

	localTicks <- time.Now()
	require.Eventually(t, func() bool { return o.CurrentTick() == 1 }, waitFor, 10*time.Millisecond)

	reply, err := relay(t, tf, o, world.Charge{Key: key, Amount: 300})
	require.NoError(t, err)
	var accepted int
	require.NoError(t, reply.Decode(&accepted))
	assert.Equal(t, 300, accepted)
	require.Eventually(t, func() bool {
		stored := 0
		o.Inspect(key, func(m *machine.Machine) {
			if s, ok := energy.Of(m); ok {
				stored = s.Stored()
			}
		})
		return stored == 300
	}, waitFor, 10*time.Millisecond, "charging is synced to observers")

	_, err = relay(t, tf, o, world.Place{Key: key, Kind: recycler.Kind})
	assert.ErrorIs(t, err, observer.ErrRejected)
	require.ErrorContains(t, err, "409")

	_, err = relay(t, tf, o, world.Remove{Key: key})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return o.MachineCount() == 0 }, waitFor, 10*time.Millisecond)
}

func TestObserver_MirrorsNATS(t *testing.T) {
	srv := test.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)
	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	reg := registry.New(registry.DefaultCatalog())
	b := machine.NewBlueprints()
	require.NoError(t, recycler.Register(b, reg, reg))

	o, err := observer.New(b, reg,
		observer.NATSSource{Conn: conn, Namespace: "test", Logger: zerolog.Nop()},
		"",
		observer.WithLogger(zerolog.Nop()),
		observer.WithTickRate(100),
	)
	require.NoError(t, err)
	run(t, o)

	authoritative, err := b.New(recycler.Kind, key)
	require.NoError(t, err)
	seq := netsync.NewSequencerWithEpoch(1)
	pub := netsync.NewNATSPublisher(conn, "test")

	// The subscription may not be active yet, so keep publishing until a snapshot arrives.
	require.Eventually(t, func() bool {
		s := netsync.Snapshot{Key: key, Kind: recycler.Kind, State: authoritative.Snapshot()}
		seq.Stamp(&s)
		if err := pub.Publish(context.Background(), s); err != nil {
			return false
		}
		return o.Applied(key) > 0
	}, waitFor, 20*time.Millisecond)
	assert.Equal(t, 1, o.MachineCount())

	removed := netsync.Snapshot{Key: key, Kind: recycler.Kind, Removed: true}
	seq.Stamp(&removed)
	require.NoError(t, pub.Publish(context.Background(), removed))
	require.Eventually(t, func() bool { return o.MachineCount() == 0 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return o.CurrentTick() > 0 }, waitFor, 10*time.Millisecond)
}

func TestObserver_StopsWhenSourceFails(t *testing.T) {
	o, err := observer.New(machine.NewBlueprints(), nil,
		observer.WebSocketSource{URL: "ws://127.0.0.1:1/events"}, "",
		observer.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)

	err = o.Run(context.Background())
	require.Error(t, err)
	assert.False(t, eris.Is(err, context.Canceled))
}
