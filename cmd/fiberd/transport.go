package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	natsgo "github.com/nats-io/nats.go"

	grpcwire "github.com/codewandler/clstr-fiber/adapters/grpc"
	"github.com/codewandler/clstr-fiber/adapters/nats"
	"github.com/codewandler/clstr-fiber/core/config"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/ports/kv"
)

// transport is the wire and location store selected by the config.
type transport struct {
	wire      msgqueue.Wire
	locations kv.Store
	closers   []func() error
}

func (t *transport) Close() error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i]())
	}
	return errors.Join(errs...)
}

func newTransport(ctx context.Context, cfg *config.Config, log *slog.Logger) (*transport, error) {
	t := &transport{}
	switch cfg.Transport.Kind {
	case "memory":
		w := msgqueue.NewMemoryWire()
		t.wire = w
		t.locations = kv.NewMemStore()
		t.closers = append(t.closers, w.Close)

	case "nats":
		connect := nats.ReuseConnection(nats.ConnectURL(cfg.Transport.NATS.URL,
			natsgo.Name(fmt.Sprintf("fiberd-%d", cfg.Process.ID))))
		w, err := nats.NewWire(nats.WireConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: cfg.Transport.NATS.SubjectPrefix,
			Routes:        cfg.Transport.NATS.Routes,
		})
		if err != nil {
			return nil, err
		}
		t.wire = w
		t.closers = append(t.closers, w.Close)

		store, err := nats.NewKVStore(ctx, nats.KVConfig{
			Connect: connect,
			Bucket:  cfg.Location.Bucket,
			TTL:     cfg.Location.TTL,
		})
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.locations = store
		t.closers = append(t.closers, func() error { store.Close(); return nil })

	case "grpc":
		w, err := grpcwire.NewWire(grpcwire.WireConfig{
			Listen: cfg.Transport.GRPC.Listen,
			Peers:  cfg.Transport.GRPC.Peers,
			Log:    log,
		})
		if err != nil {
			return nil, err
		}
		t.wire = w
		// gRPC only carries envelopes; without a shared store every process
		// resolves only its own entities.
		t.locations = kv.NewMemStore()
		t.closers = append(t.closers, w.Close)

	default:
		return nil, fmt.Errorf("%w: transport %q", config.ErrInvalid, cfg.Transport.Kind)
	}
	return t, nil
}
