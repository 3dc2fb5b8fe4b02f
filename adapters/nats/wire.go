package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/clstr-fiber/core/msgqueue"
)

type WireConfig struct {
	Connect Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log     *slog.Logger // Log for diagnostics (optional)
	// SubjectPrefix for process subjects, e.g. "clstr.fiber" -> clstr.fiber.proc.<id>
	SubjectPrefix string
	// Routes lists the processes that exist. Publishing to any other process
	// fails with msgqueue.ErrNoRoute; empty disables the check.
	Routes []int32
}

// Wire carries envelope frames between processes over core NATS. Every
// process listens on its own subject; NATS keeps per-publisher order on a
// subject, which gives the per-pair ordering the queue relies on.
type Wire struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string
	routes  map[int32]struct{}

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	closed atomic.Bool
}

func NewWire(cfg WireConfig) (*Wire, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "clstr.fiber"
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	w := &Wire{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("wire", "nats")),
		prefix:  prefix,
		subs:    make(map[*natsgo.Subscription]struct{}),
	}
	if len(cfg.Routes) > 0 {
		w.routes = make(map[int32]struct{}, len(cfg.Routes))
		for _, pid := range cfg.Routes {
			w.routes[pid] = struct{}{}
		}
	}
	return w, nil
}

func (w *Wire) subject(processID int32) string {
	return w.prefix + ".proc." + strconv.Itoa(int(processID))
}

func (w *Wire) SendToProcess(_ context.Context, processID int32, data []byte) error {
	if w.closed.Load() {
		return msgqueue.ErrWireClosed
	}
	if w.routes != nil {
		if _, ok := w.routes[processID]; !ok {
			return fmt.Errorf("%w: %d", msgqueue.ErrNoRoute, processID)
		}
	}
	if err := w.nc.Publish(w.subject(processID), data); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

func (w *Wire) Listen(ctx context.Context, processID int32, fn msgqueue.ReceiveFunc) (msgqueue.Subscription, error) {
	if w.closed.Load() {
		return nil, msgqueue.ErrWireClosed
	}
	subj := w.subject(processID)

	sub, err := w.nc.Subscribe(subj, func(msg *natsgo.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", subj, err)
	}
	// make sure the server knows the subscription before the first publish
	if err := w.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats: flush: %w", err)
	}

	w.mu.Lock()
	w.subs[sub] = struct{}{}
	w.mu.Unlock()
	w.log.Debug("listening", slog.String("subject", subj))

	s := &subscription{sub: sub, w: w}
	context.AfterFunc(ctx, func() { _ = s.Unsubscribe() })
	return s, nil
}

func (w *Wire) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.mu.Lock()
	for s := range w.subs {
		_ = s.Unsubscribe()
	}
	clear(w.subs)
	w.mu.Unlock()
	if w.nc != nil {
		_ = w.nc.Drain()
		w.closeNc()
	}
	return nil
}

type subscription struct {
	sub  *natsgo.Subscription
	w    *Wire
	once sync.Once
}

func (s *subscription) Unsubscribe() (err error) {
	s.once.Do(func() {
		s.w.mu.Lock()
		_, live := s.w.subs[s.sub]
		delete(s.w.subs, s.sub)
		s.w.mu.Unlock()
		if live {
			err = s.sub.Unsubscribe()
		}
	})
	return err
}

var _ msgqueue.Wire = (*Wire)(nil)
