// Package grpc carries envelope frames between processes over gRPC. It is
// the point-to-point alternative to the NATS wire: every process serves one
// endpoint and dials its peers directly.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/codewandler/clstr-fiber/core/msgqueue"
)

const (
	serviceName   = "clstr.fiber.Wire"
	deliverMethod = "/" + serviceName + "/Deliver"
)

type WireConfig struct {
	// Listen is the address to serve on, e.g. ":7400". Empty makes the wire
	// send-only.
	Listen string
	// Peers maps process ids to the address their wire serves on.
	Peers       map[int32]string
	SendTimeout time.Duration
	Log         *slog.Logger
}

type Wire struct {
	log         *slog.Logger
	sendTimeout time.Duration
	server      *grpc.Server
	lis         net.Listener

	mu        sync.RWMutex
	closed    bool
	peers     map[int32]string
	conns     map[string]*grpc.ClientConn
	listeners map[int32]msgqueue.ReceiveFunc
}

// deliverer is the HandlerType of the service; the wire itself implements it.
type deliverer interface {
	deliver(frame []byte) byte
}

func NewWire(cfg WireConfig) (*Wire, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	w := &Wire{
		log:         cfg.Log.With(slog.String("wire", "grpc")),
		sendTimeout: cfg.SendTimeout,
		peers:       make(map[int32]string, len(cfg.Peers)),
		conns:       make(map[string]*grpc.ClientConn),
		listeners:   make(map[int32]msgqueue.ReceiveFunc),
	}
	for pid, addr := range cfg.Peers {
		w.peers[pid] = addr
	}

	if cfg.Listen != "" {
		lis, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return nil, fmt.Errorf("grpc wire: listen %s: %w", cfg.Listen, err)
		}
		w.lis = lis
		w.server = grpc.NewServer(grpc.ForceServerCodec(rawCodec{}))
		w.server.RegisterService(&grpc.ServiceDesc{
			ServiceName: serviceName,
			HandlerType: (*deliverer)(nil),
			Methods: []grpc.MethodDesc{{
				MethodName: "Deliver",
				Handler: func(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var frame []byte
					if err := dec(&frame); err != nil {
						return nil, err
					}
					status := []byte{srv.(deliverer).deliver(frame)}
					return &status, nil
				},
			}},
			Metadata: "raw",
		}, w)
		go func() {
			if err := w.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				w.log.Error("serve failed", slog.Any("error", err))
			}
		}()
		w.log.Debug("serving", slog.String("addr", lis.Addr().String()))
	}
	return w, nil
}

// Addr is the address the wire serves on, empty for send-only wires.
func (w *Wire) Addr() string {
	if w.lis == nil {
		return ""
	}
	return w.lis.Addr().String()
}

// SetPeer adds or replaces the address of processID.
func (w *Wire) SetPeer(processID int32, addr string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.peers[processID] = addr
}

func (w *Wire) SendToProcess(ctx context.Context, processID int32, data []byte) error {
	w.mu.RLock()
	closed := w.closed
	local := w.listeners[processID]
	addr, known := w.peers[processID]
	w.mu.RUnlock()

	switch {
	case closed:
		return msgqueue.ErrWireClosed
	case local != nil:
		frame := make([]byte, len(data))
		copy(frame, data)
		local(frame)
		return nil
	case !known:
		return fmt.Errorf("%w: %d", msgqueue.ErrNoRoute, processID)
	}

	cc, err := w.conn(addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	req := encodeFrame(processID, data)
	var status []byte
	if err := cc.Invoke(ctx, deliverMethod, &req, &status, grpc.ForceCodec(rawCodec{})); err != nil {
		return fmt.Errorf("grpc wire: deliver to %d: %w", processID, err)
	}
	if len(status) == 1 && status[0] == statusNoRoute {
		return fmt.Errorf("%w: %d not served at %s", msgqueue.ErrNoRoute, processID, addr)
	}
	return nil
}

func (w *Wire) conn(addr string) (*grpc.ClientConn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Close may have run since SendToProcess looked
	if w.closed {
		return nil, msgqueue.ErrWireClosed
	}
	if cc, ok := w.conns[addr]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc wire: dial %s: %w", addr, err)
	}
	w.conns[addr] = cc
	return cc, nil
}

// deliver runs on the server for each incoming frame.
func (w *Wire) deliver(frame []byte) byte {
	pid, data, err := decodeFrame(frame)
	if err != nil {
		w.log.Error("dropping frame", slog.Any("error", err))
		return statusNoRoute
	}
	w.mu.RLock()
	fn := w.listeners[pid]
	w.mu.RUnlock()
	if fn == nil {
		return statusNoRoute
	}
	fn(data)
	return statusOK
}

func (w *Wire) Listen(ctx context.Context, processID int32, fn msgqueue.ReceiveFunc) (msgqueue.Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, msgqueue.ErrWireClosed
	}
	if _, ok := w.listeners[processID]; ok {
		return nil, fmt.Errorf("grpc wire: process %d already listening", processID)
	}
	w.listeners[processID] = fn

	s := &subscription{w: w, processID: processID}
	context.AfterFunc(ctx, func() { _ = s.Unsubscribe() })
	return s, nil
}

func (w *Wire) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	clear(w.listeners)
	conns := w.conns
	w.conns = nil
	w.mu.Unlock()

	var errs []error
	for _, cc := range conns {
		errs = append(errs, cc.Close())
	}
	if w.server != nil {
		w.server.GracefulStop()
	}
	return errors.Join(errs...)
}

type subscription struct {
	w         *Wire
	processID int32
	once      sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.w.mu.Lock()
		defer s.w.mu.Unlock()
		delete(s.w.listeners, s.processID)
	})
	return nil
}

var _ msgqueue.Wire = (*Wire)(nil)
