// Package subscription tracks the server-side topics a client has joined on
// a hub and re-joins them after every reconnect.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/logging"
)

// Kind classifies a topic.
type Kind string

const (
	KindAccount Kind = "account"
	KindCall    Kind = "call"
	KindGroup   Kind = "group"
)

// Hub invocation names.
const (
	MethodSubscribeAccount   = "SubscribeToAccountUpdates"
	MethodUnsubscribeAccount = "UnsubscribeFromAccountUpdates"
	MethodSubscribeCall      = "SubscribeToCallUpdates"
	MethodUnsubscribeCall    = "UnsubscribeFromCallUpdates"
	MethodJoinGroup          = "JoinGroup"
	MethodLeaveGroup         = "LeaveGroup"
)

// Topic is a server-side channel scoped to one account, call or group.
type Topic struct {
	Kind Kind
	ID   string
}

// AccountTopic scopes to one account's updates.
func AccountTopic(id int64) Topic {
	return Topic{Kind: KindAccount, ID: strconv.FormatInt(id, 10)}
}

// CallTopic scopes to one call's updates.
func CallTopic(id int64) Topic {
	return Topic{Kind: KindCall, ID: strconv.FormatInt(id, 10)}
}

// GroupTopic scopes to a named group.
func GroupTopic(name string) Topic {
	return Topic{Kind: KindGroup, ID: name}
}

// ChatGroup returns the group carrying one chat's messages.
func ChatGroup(chatID int64) Topic {
	return GroupTopic(fmt.Sprintf("chat_%d", chatID))
}

func (t Topic) String() string {
	return string(t.Kind) + ":" + t.ID
}

func (t Topic) methods() (join, leave string, err error) {
	switch t.Kind {
	case KindAccount:
		return MethodSubscribeAccount, MethodUnsubscribeAccount, nil
	case KindCall:
		return MethodSubscribeCall, MethodUnsubscribeCall, nil
	case KindGroup:
		return MethodJoinGroup, MethodLeaveGroup, nil
	default:
		return "", "", fmt.Errorf("unknown topic kind %q", t.Kind)
	}
}

// arg is the invocation argument: numeric ids go out as numbers.
func (t Topic) arg() any {
	if t.Kind != KindGroup {
		if n, err := strconv.ParseInt(t.ID, 10, 64); err == nil {
			return n
		}
	}
	return t.ID
}

// Invoker sends a hub invocation. *hub.Conn satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error)
}

// Registry is the replay set for one hub.
//
// A join that the server rejects stays in the set so the next reconnect
// retries it. Topics are never evicted; consecutive failures are counted
// per topic and reset on the first success.
type Registry struct {
	mu     sync.Mutex
	inv    Invoker
	topics map[Topic]*entry
	log    *logging.Logger
}

type entry struct {
	failures int
	lastErr  error
}

// NewRegistry creates an empty registry bound to inv.
func NewRegistry(inv Invoker, log *logging.Logger) *Registry {
	return &Registry{
		inv:    inv,
		topics: make(map[Topic]*entry),
		log:    log.Sub("subscriptions"),
	}
}

// Join records t and asks the server to join it. The topic is recorded
// before the invocation, so a failed join is still replayed later; the
// error is returned as a warning.
func (r *Registry) Join(ctx context.Context, t Topic) error {
	join, _, err := t.methods()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.topics[t]; !ok {
		r.topics[t] = &entry{}
	}
	r.mu.Unlock()

	err = r.invoke(ctx, join, t)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", t.String()).Msg("join failed; will retry on reconnect")
		return fmt.Errorf("join %s: %w", t, err)
	}
	r.log.Debug().Str("topic", t.String()).Msg("joined")
	return nil
}

// Leave removes t from the replay set and tells the server.
func (r *Registry) Leave(ctx context.Context, t Topic) error {
	_, leave, err := t.methods()
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.topics, t)
	r.mu.Unlock()

	if _, err := r.inv.Invoke(ctx, leave, t.arg()); err != nil {
		return fmt.Errorf("leave %s: %w", t, err)
	}
	r.log.Debug().Str("topic", t.String()).Msg("left")
	return nil
}

// Replay re-joins every recorded topic, in no particular order. Failures
// are logged and joined into the returned error; they do not stop the
// remaining joins.
func (r *Registry) Replay(ctx context.Context) error {
	topics := r.Topics()
	if len(topics) == 0 {
		return nil
	}

	var errs []error
	for _, t := range topics {
		join, _, err := t.methods()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.invoke(ctx, join, t); err != nil {
			errs = append(errs, fmt.Errorf("rejoin %s: %w", t, err))
		}
	}

	if len(errs) > 0 {
		r.log.Warn().Int("topics", len(topics)).Int("failed", len(errs)).Msg("subscription replay incomplete")
	} else {
		r.log.Info().Int("topics", len(topics)).Msg("subscriptions replayed")
	}
	return errors.Join(errs...)
}

// Attach replays the registry whenever d reports a reconnect.
func (r *Registry) Attach(d *events.Dispatcher) {
	events.Subscribe(d, "subscription-replay", func(ctx context.Context, _ events.Reconnected) error {
		return r.Replay(ctx)
	})
}

// invoke performs a join and updates the topic's failure count, unless the
// topic was left in the meantime.
func (r *Registry) invoke(ctx context.Context, method string, t Topic) error {
	_, err := r.inv.Invoke(ctx, method, t.arg())

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.topics[t]; ok {
		if err != nil {
			e.failures++
			e.lastErr = err
		} else {
			e.failures = 0
			e.lastErr = nil
		}
	}
	return err
}

// Has reports whether t is in the replay set.
func (r *Registry) Has(t Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.topics[t]
	return ok
}

// Failures returns the consecutive failed joins of t.
func (r *Registry) Failures(t Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.topics[t]; ok {
		return e.failures
	}
	return 0
}

// Topics returns the replay set sorted by kind then id.
func (r *Registry) Topics() []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Topic, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of recorded topics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}
