package message

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/codewandler/clstr-fiber/core/reflector"
)

var (
	ErrUnknownType      = errors.New("unknown message type")
	ErrNotResponse      = errors.New("type does not implement message.Response")
	ErrResponseMismatch = errors.New("response type mismatch")
)

var responseType = reflect.TypeFor[Response]()

// Registry maps message type names to Go types and request types to their
// response types. It is filled at startup and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	types     map[string]reflect.Type
	responses map[string]string
}

func NewRegistry() *Registry {
	r := &Registry{
		types:     make(map[string]reflect.Type),
		responses: make(map[string]string),
	}
	Register[ErrorResponse](r)
	return r
}

// Register makes T decodable by name and returns that name.
func Register[T any](r *Registry) string {
	ti := reflector.TypeInfoFor[T]()
	r.add(ti.Name, ti.Type)
	return ti.Name
}

// RegisterRequest registers REQ, RESP and the pairing between them.
func RegisterRequest[REQ any, RESP any](r *Registry) error {
	return r.RegisterPair(reflector.TypeInfoFor[REQ](), reflector.TypeInfoFor[RESP]())
}

// MustRegisterRequest is RegisterRequest that panics on error.
func MustRegisterRequest[REQ any, RESP any](r *Registry) {
	if err := RegisterRequest[REQ, RESP](r); err != nil {
		panic(err)
	}
}

// RegisterPair is the non-generic form of RegisterRequest.
func (r *Registry) RegisterPair(req, resp reflector.TypeInfo) error {
	if !reflect.PointerTo(resp.Type).Implements(responseType) {
		return fmt.Errorf("%w: %s", ErrNotResponse, resp.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.responses[req.Name]; ok && existing != resp.Name {
		return fmt.Errorf("%w: %s is answered by %s, not %s", ErrResponseMismatch, req.Name, existing, resp.Name)
	}
	r.types[req.Name] = req.Type
	r.types[resp.Name] = resp.Type
	r.responses[req.Name] = resp.Name
	return nil
}

func (r *Registry) add(name string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
}

// New allocates a zero value of the named type and returns a pointer to it.
func (r *Registry) New(name string) (any, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return reflect.New(t).Interface(), nil
}

// ResponseTypeFor returns the response type name registered for requestType.
func (r *Registry) ResponseTypeFor(requestType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.responses[requestType]
	return name, ok
}

// NewResponse allocates the response registered for requestType, or an
// ErrorResponse when none is known.
func (r *Registry) NewResponse(requestType string) Response {
	if name, ok := r.ResponseTypeFor(requestType); ok {
		if v, err := r.New(name); err == nil {
			if resp, ok := v.(Response); ok {
				return resp
			}
		}
	}
	return &ErrorResponse{}
}
