// Package redis stores machine records in two redis hashes per namespace: one for records keyed
// by machine key and one for layouts keyed by machine kind.
package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/foundry/storage"
	"pkg.world.dev/world-engine/foundry/types"
)

var _ storage.Store = (*Store)(nil)

type Options = redis.Options

type Store struct {
	Namespace string
	Client    *redis.Client
}

func NewStore(options Options, namespace string) *Store {
	return NewStoreFromClient(redis.NewClient(&options), namespace)
}

func NewStoreFromClient(client *redis.Client, namespace string) *Store {
	return &Store{Namespace: namespace, Client: client}
}

func (s *Store) recordsKey() string {
	return "foundry:" + s.Namespace + ":machines"
}

func (s *Store) layoutsKey() string {
	return "foundry:" + s.Namespace + ":layouts"
}

func (s *Store) metaKey() string {
	return "foundry:" + s.Namespace + ":meta"
}

func (s *Store) Save(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]any, 0, len(records)*2) //nolint:gomnd // field, value
	for _, r := range records {
		bz, err := storage.EncodeRecord(r)
		if err != nil {
			return err
		}
		values = append(values, r.Key.String(), bz)
	}
	if err := s.Client.HSet(ctx, s.recordsKey(), values...).Err(); err != nil {
		return eris.Wrap(err, "failed to save records")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...types.Key) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, k.String())
	}
	if err := s.Client.HDel(ctx, s.recordsKey(), fields...).Err(); err != nil {
		return eris.Wrap(err, "failed to delete records")
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]storage.Record, error) {
	raw, err := s.Client.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load records")
	}
	records := make([]storage.Record, 0, len(raw))
	for field, value := range raw {
		key, err := types.ParseKey(field)
		if err != nil {
			log.Error().Err(err).Str("field", field).Msg("skipping record with malformed key")
			continue
		}
		r, err := storage.DecodeRecord(key, []byte(value))
		if err != nil {
			log.Error().Err(err).Str("machine", field).Msg("skipping corrupt record")
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Store) GetLayout(ctx context.Context, kind string) ([]byte, error) {
	bz, err := s.Client.HGet(ctx, s.layoutsKey(), kind).Bytes()
	if eris.Is(err, redis.Nil) {
		return nil, eris.Wrapf(storage.ErrNoLayoutFound, "kind %q", kind)
	} else if err != nil {
		return nil, eris.Wrap(err, "failed to get layout")
	}
	return bz, nil
}

func (s *Store) SetLayout(ctx context.Context, kind string, layout []byte) error {
	return eris.Wrap(s.Client.HSet(ctx, s.layoutsKey(), kind, layout).Err(), "failed to set layout")
}

func (s *Store) GetMeta(ctx context.Context, name string) ([]byte, error) {
	bz, err := s.Client.HGet(ctx, s.metaKey(), name).Bytes()
	if eris.Is(err, redis.Nil) {
		return nil, eris.Wrapf(storage.ErrNoMetaFound, "name %q", name)
	} else if err != nil {
		return nil, eris.Wrap(err, "failed to get meta value")
	}
	return bz, nil
}

func (s *Store) SetMeta(ctx context.Context, name string, value []byte) error {
	return eris.Wrap(s.Client.HSet(ctx, s.metaKey(), name, value).Err(), "failed to set meta value")
}

func (s *Store) Close() error {
	log.Info().Msg("Closing storage connection.")
	if err := s.Client.Close(); err != nil {
		return eris.Wrap(err, "")
	}
	log.Info().Msg("Successfully closed storage connection.")
	return nil
}
