package msgqueue

import "errors"

var (
	// ErrNoRoute means no wire knows the destination process.
	ErrNoRoute = errors.New("no route to process")
	// ErrNoFiber means the destination process has no such fiber.
	ErrNoFiber   = errors.New("no such fiber")
	ErrInboxFull = errors.New("fiber inbox full")

	ErrWireClosed  = errors.New("wire closed")
	ErrQueueClosed = errors.New("queue closed")
	ErrDuplicate   = errors.New("fiber inbox already exists")
)

// Unroutable reports whether err means the target cannot be reached at all,
// which callers translate into a NotFoundActor answer.
func Unroutable(err error) bool {
	return errors.Is(err, ErrNoRoute) || errors.Is(err, ErrNoFiber)
}
