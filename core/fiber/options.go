package fiber

import (
	"log/slog"
	"time"

	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/core/rpc"
	"github.com/codewandler/clstr-fiber/core/timer"
)

const DefaultBatchSize = 1000

// Options are the per-fiber tunables.
type Options struct {
	// RequestTimeout bounds every Call made from the fiber. Default 40s.
	RequestTimeout time.Duration
	// SweepInterval is how often expired calls are swept. Default 1s.
	SweepInterval time.Duration
	// BatchSize caps the envelopes handled per tick. Default 1000.
	BatchSize int
	// LockWaitTimeout bounds the wait for an ordered mailbox; 0 waits forever.
	LockWaitTimeout time.Duration
	Clock           timer.Clock
}

type Option func(*Options)

func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) { o.RequestTimeout = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(o *Options) { o.SweepInterval = d }
}

func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

func WithLockWaitTimeout(d time.Duration) Option {
	return func(o *Options) { o.LockWaitTimeout = d }
}

func WithClock(c timer.Clock) Option {
	return func(o *Options) { o.Clock = c }
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = rpc.DefaultTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = rpc.DefaultSweepInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Clock == nil {
		o.Clock = timer.Real()
	}
	return o
}

// Metrics bundles the instrumentation of every layer a process runs.
type Metrics struct {
	RPC      rpc.Metrics
	Dispatch dispatch.Metrics
	Queue    msgqueue.Metrics
	Mailbox  mailbox.Metrics
}

func (m Metrics) withDefaults() Metrics {
	if m.RPC == nil {
		m.RPC = rpc.NopMetrics()
	}
	if m.Dispatch == nil {
		m.Dispatch = dispatch.NopMetrics()
	}
	if m.Queue == nil {
		m.Queue = msgqueue.NopMetrics()
	}
	if m.Mailbox == nil {
		m.Mailbox = mailbox.NopMetrics()
	}
	return m
}

type ProcessOptions struct {
	ID int32
	// Wire connects the process to its peers; nil keeps it local.
	Wire msgqueue.Wire
	// Types is shared by the codec, the dispatcher and every correlator.
	Types    *message.Registry
	Handlers []dispatch.Registration
	// Fiber holds the defaults for NewFiber.
	Fiber         Options
	MaxInboxDepth int
	Log           *slog.Logger
	Metrics       Metrics
}
