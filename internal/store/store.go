// Package store holds the client-side state for accounts and calls, chats
// and agents. Each store merges REST results and hub push events into its
// own collections and tells watchers after every change.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
)

// Hub is the connection a store drives. *hub.Conn satisfies it.
type Hub interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() hub.State
}

// core carries what every store shares: the lock guarding its state, the
// request status fields and the watcher list.
type core struct {
	name string

	mu      sync.RWMutex
	loading bool
	err     string

	wmu      sync.Mutex
	nextID   int
	watchers map[int]func()

	log     *logging.Logger
	metrics *metrics.Metrics
}

func (c *core) init(name string, log *logging.Logger, m *metrics.Metrics) {
	c.name = name
	c.watchers = make(map[int]func())
	c.log = log.Sub("store").With("store", name)
	c.metrics = m
}

// Watch registers fn to run after every state change. fn runs on the
// goroutine that made the change and must not block. The returned func
// removes it.
func (c *core) Watch(fn func()) (cancel func()) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	return func() {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		delete(c.watchers, id)
	}
}

// Loading reports whether a request is in flight.
func (c *core) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Error returns the last request's failure, or "".
func (c *core) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// ClearError resets the error.
func (c *core) ClearError() {
	c.mutate(func() { c.err = "" })
}

func (c *core) notify() {
	c.wmu.Lock()
	fns := make([]func(), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.wmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mutate applies fn under the write lock, then notifies watchers.
func (c *core) mutate(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
	c.notify()
}

// begin starts a request: error cleared, loading set.
func (c *core) begin() {
	c.mutate(func() {
		c.err = ""
		c.loading = true
	})
}

// settle ends a request started with begin. On success apply runs under
// the same lock that clears loading; on failure the collections are left
// untouched and failure becomes the error.
func (c *core) settle(op, failure string, apply func()) {
	c.mutate(func() {
		c.loading = false
		if failure != "" {
			c.err = failure
			return
		}
		if apply != nil {
			apply()
		}
	})
	if failure != "" {
		c.fail(op, failure)
	}
}

// fail records a failed operation that does not use begin/settle.
func (c *core) fail(op, failure string) {
	c.metrics.StoreError(c.name, op)
	c.log.Warn().Str("op", op).Str("error", failure).Msg("operation failed")
}

// upsert replaces the element whose key matches item's, or appends item.
// The input slice is not modified.
func upsert[T any, K comparable](items []T, item T, key func(T) K) []T {
	out := slices.Clone(items)
	k := key(item)
	for i := range out {
		if key(out[i]) == k {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

// replace swaps in item where the key matches and leaves the slice
// otherwise unchanged.
func replace[T any, K comparable](items []T, item T, key func(T) K) []T {
	out := slices.Clone(items)
	k := key(item)
	for i := range out {
		if key(out[i]) == k {
			out[i] = item
		}
	}
	return out
}

// without drops every element whose key is k.
func without[T any, K comparable](items []T, k K, key func(T) K) []T {
	return slices.DeleteFunc(slices.Clone(items), func(v T) bool { return key(v) == k })
}

func find[T any, K comparable](items []T, k K, key func(T) K) (T, bool) {
	for _, v := range items {
		if key(v) == k {
			return v, true
		}
	}
	var zero T
	return zero, false
}
