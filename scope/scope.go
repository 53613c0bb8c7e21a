// Package scope defines the boundary through which a work unit obtains its
// collaborators. A fresh Context is created for every execution and released
// unconditionally when the execution ends, so work units never hold
// resolved resources across ticks.
package scope

import "errors"

// ErrUnknownCapability is returned when a Context cannot resolve a name.
var ErrUnknownCapability = errors.New("unknown capability")

// Context is the execution context of a single work unit run. It is owned
// exclusively by that run; Close releases everything resolved through it.
type Context interface {
	// Resolve returns the instance registered under the given capability name.
	Resolve(capability string) (any, error)

	// Close releases all resources resolved through this context.
	// It is called exactly once per execution, regardless of outcome.
	Close() error
}

// Resolver creates execution contexts. Implementations are supplied by the
// surrounding infrastructure (eg a DI container adapter).
type Resolver interface {
	NewScope() (Context, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func() (Context, error)

func (f ResolverFunc) NewScope() (Context, error) {
	return f()
}

// NewNopResolver returns a Resolver whose contexts resolve nothing.
// Used by tasks whose work units need no scoped collaborators.
func NewNopResolver() Resolver {
	return ResolverFunc(func() (Context, error) {
		return nopContext{}, nil
	})
}

type nopContext struct{}

func (nopContext) Resolve(string) (any, error) {
	return nil, ErrUnknownCapability
}

func (nopContext) Close() error {
	return nil
}
