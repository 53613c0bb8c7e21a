package scope

import (
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

// Constructor builds one instance of a capability for a single scope.
type Constructor func() (any, error)

// NewStaticResolver returns a Resolver backed by a fixed set of
// constructors. Each scope invokes a constructor at most once and caches the
// result; Close releases every constructed instance that implements
// io.Closer, in reverse construction order.
func NewStaticResolver(constructors map[string]Constructor) Resolver {
	return ResolverFunc(func() (Context, error) {
		return &staticContext{
			constructors: constructors,
			instances:    map[string]any{},
		}, nil
	})
}

type staticContext struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	instances    map[string]any
	order        []string
	closed       bool
}

func (c *staticContext) Resolve(capability string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, stacktrace.Wrap(errors.New("scope already closed"))
	}

	if instance, ok := c.instances[capability]; ok {
		return instance, nil
	}

	construct, ok := c.constructors[capability]
	if !ok {
		return nil, stacktrace.Wrap(ErrUnknownCapability)
	}

	instance, err := construct()
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	c.instances[capability] = instance
	c.order = append(c.order, capability)
	return instance, nil
}

func (c *staticContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, capability := range slices.Backward(c.order) {
		if closer, ok := c.instances[capability].(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, stacktrace.Wrap(err))
			}
		}
	}
	return errors.Join(errs...)
}
