package observer

import (
	"context"

	gorilla "github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"pkg.world.dev/world-engine/foundry/netsync"
)

// Source streams snapshots from an authoritative world until ctx is done.
type Source interface {
	Stream(ctx context.Context, deliver func(netsync.Snapshot)) error
}

// WebSocketSource reads the snapshot stream served on the /events route of a foundry server.
type WebSocketSource struct {
	URL    string
	Dialer *gorilla.Dialer
	Logger zerolog.Logger
}

func (s WebSocketSource) Stream(ctx context.Context, deliver func(netsync.Snapshot)) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = gorilla.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return eris.Wrapf(err, "failed to connect to %s", s.URL)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return eris.Wrap(err, "snapshot stream closed")
		}
		snapshot, err := netsync.UnmarshalSnapshot(msg)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("dropping malformed snapshot")
			continue
		}
		deliver(snapshot)
	}
}

// NATSSource subscribes to the sync subjects of a namespace.
type NATSSource struct {
	Conn      *nats.Conn
	Namespace string
	Logger    zerolog.Logger
}

func (s NATSSource) Stream(ctx context.Context, deliver func(netsync.Snapshot)) error {
	sub, err := netsync.Subscribe(s.Conn, s.Namespace, s.Logger, deliver)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return eris.Wrap(sub.Unsubscribe(), "failed to unsubscribe from snapshots")
}
