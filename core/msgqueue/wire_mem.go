package msgqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MemoryWire connects processes living in one OS process, mostly for tests
// and single-binary deployments. Frames are copied so sender and receiver
// never share buffers.
type MemoryWire struct {
	mu  sync.RWMutex
	log *slog.Logger

	closed bool

	// process -> subID -> receiver
	listeners map[int32]map[string]ReceiveFunc

	seq atomic.Uint64
}

func NewMemoryWire() *MemoryWire {
	return &MemoryWire{
		log:       slog.New(slog.DiscardHandler),
		listeners: make(map[int32]map[string]ReceiveFunc),
	}
}

func (w *MemoryWire) WithLog(log *slog.Logger) *MemoryWire {
	w.log = log.With(slog.String("wire", "mem"))
	return w
}

func (w *MemoryWire) SendToProcess(_ context.Context, processID int32, data []byte) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWireClosed
	}
	subs := w.listeners[processID]
	receivers := make([]ReceiveFunc, 0, len(subs))
	for _, fn := range subs {
		receivers = append(receivers, fn)
	}
	w.mu.RUnlock()

	if len(receivers) == 0 {
		return fmt.Errorf("%w: %d", ErrNoRoute, processID)
	}

	// Receivers only enqueue, so delivering inline keeps per-pair ordering.
	for _, fn := range receivers {
		frame := make([]byte, len(data))
		copy(frame, data)
		fn(frame)
	}
	return nil
}

func (w *MemoryWire) Listen(ctx context.Context, processID int32, fn ReceiveFunc) (Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrWireClosed
	}
	if w.listeners[processID] == nil {
		w.listeners[processID] = make(map[string]ReceiveFunc)
	}
	subID := fmt.Sprintf("sub.%d.%d", processID, w.seq.Add(1))
	w.listeners[processID][subID] = fn

	s := &memSubscription{
		w:         w,
		log:       w.log.With(slog.String("subscription", subID), slog.Int("process", int(processID))),
		processID: processID,
		subID:     subID,
	}
	s.log.Debug("listening")

	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})

	return s, nil
}

func (w *MemoryWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	clear(w.listeners)
	w.log.Debug("closed")
	return nil
}

type memSubscription struct {
	w         *MemoryWire
	log       *slog.Logger
	processID int32
	subID     string
	once      sync.Once
}

func (s *memSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.w.mu.Lock()
		defer s.w.mu.Unlock()
		if subs := s.w.listeners[s.processID]; subs != nil {
			delete(subs, s.subID)
			if len(subs) == 0 {
				delete(s.w.listeners, s.processID)
			}
		}
		s.log.Debug("unsubscribed")
	})
	return nil
}

var _ Wire = (*MemoryWire)(nil)
