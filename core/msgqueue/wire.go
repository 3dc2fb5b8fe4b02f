package msgqueue

import "context"

type Subscription interface {
	Unsubscribe() error
}

// ReceiveFunc is called with every frame addressed to a listening process.
// It must not block; the queue only decodes and enqueues.
type ReceiveFunc func(data []byte)

// Wire carries encoded envelopes between processes. Frames between one pair
// of processes are delivered in send order.
type Wire interface {
	// SendToProcess hands data to the destination process. ErrNoRoute when the
	// process is unknown to the wire.
	SendToProcess(ctx context.Context, processID int32, data []byte) error

	// Listen delivers frames addressed to processID to fn until ctx is done or
	// the subscription is cancelled.
	Listen(ctx context.Context, processID int32, fn ReceiveFunc) (Subscription, error)

	Close() error
}
