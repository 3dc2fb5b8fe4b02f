package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/clstr-fiber/ports/kv"
)

type KVConfig struct {
	Connect Connector
	Bucket  string
	// TTL expires every key of the bucket; JetStream has no per-key TTL for
	// plain puts, so kv.PutOptions.TTL is not used.
	TTL time.Duration
}

// KVStore is a kv.Store on a JetStream key-value bucket.
type KVStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
}

func NewKVStore(ctx context.Context, cfg KVConfig) (*KVStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  cfg.Bucket,
		Storage: jetstream.FileStorage,
		TTL:     cfg.TTL,
		History: 1,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: kv bucket %s: %w", cfg.Bucket, err)
	}
	return &KVStore{kv: bucket, closeNc: closeNc}, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte, _ kv.PutOptions) (uint64, error) {
	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("nats: kv put %s: %w", key, err)
	}
	return rev, nil
}

func (s *KVStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return kv.Entry{}, kv.ErrNotFound
	}
	if err != nil {
		return kv.Entry{}, fmt.Errorf("nats: kv get %s: %w", key, err)
	}
	return kv.Entry{Value: v.Value(), Revision: v.Revision()}, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats: kv delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) DeleteRevision(ctx context.Context, key string, revision uint64) error {
	err := s.kv.Delete(ctx, key, jetstream.LastRevision(revision))
	var apiErr *jetstream.APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence,
		errors.Is(err, jetstream.ErrKeyExists):
		return kv.ErrConflict
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return kv.ErrConflict
	}
	return fmt.Errorf("nats: kv delete %s@%d: %w", key, revision, err)
}

func (s *KVStore) Close() {
	s.closeNc()
}

var _ kv.Store = (*KVStore)(nil)
