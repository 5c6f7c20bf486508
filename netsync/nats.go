package netsync

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Subject is the NATS subject snapshots of key are published on.
func Subject(namespace string, s Snapshot) string {
	return fmt.Sprintf("%s.%d.%d.%d.%d", subjectPrefix(namespace), s.Key.Dim, s.Key.X, s.Key.Y, s.Key.Z)
}

func subjectPrefix(namespace string) string {
	return "foundry." + namespace + ".sync"
}

// NATSPublisher publishes snapshots on the namespace's sync subjects.
type NATSPublisher struct {
	conn      *nats.Conn
	namespace string
}

func NewNATSPublisher(conn *nats.Conn, namespace string) *NATSPublisher {
	return &NATSPublisher{conn: conn, namespace: namespace}
}

func (p *NATSPublisher) Publish(_ context.Context, s Snapshot) error {
	bz, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := p.conn.Publish(Subject(p.namespace, s), bz); err != nil {
		return eris.Wrapf(err, "failed to publish snapshot of %s", s.Key)
	}
	return nil
}

// Subscribe delivers every snapshot published in namespace to handler. Undecodable messages are
// logged and skipped.
func Subscribe(
	conn *nats.Conn, namespace string, logger zerolog.Logger, handler func(Snapshot),
) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(subjectPrefix(namespace)+".>", func(msg *nats.Msg) {
		s, err := UnmarshalSnapshot(msg.Data)
		if err != nil {
			logger.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed snapshot")
			return
		}
		handler(s)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to subscribe to %s", subjectPrefix(namespace))
	}
	return sub, nil
}
