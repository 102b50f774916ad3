package events

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(logging.New(nil, "silent"), nil)
}

func TestDispatcher_OnAndDispatch(t *testing.T) {
	d := testDispatcher()

	var got domain.Account
	d.On(KindAccountUpdate, "test", func(_ context.Context, evt Event) error {
		got = evt.(AccountUpdate).Account
		return nil
	})

	failed := d.Dispatch(context.Background(), AccountUpdate{Account: domain.Account{AccountID: "a1"}})
	assert.Equal(t, 0, failed)
	assert.Equal(t, "a1", got.AccountID)
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := testDispatcher()

	var order []string
	d.On(KindCallUpdate, "first", func(_ context.Context, _ Event) error {
		order = append(order, "first")
		return nil
	})
	d.On(KindCallUpdate, "second", func(_ context.Context, _ Event) error {
		order = append(order, "second")
		return nil
	})

	d.Dispatch(context.Background(), CallUpdate{})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcher_NoDeduplication(t *testing.T) {
	d := testDispatcher()

	calls := 0
	h := func(_ context.Context, _ Event) error {
		calls++
		return nil
	}
	d.On(KindConnected, "h", h)
	d.On(KindConnected, "h", h)

	d.Dispatch(context.Background(), Connected{})
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, d.Count(KindConnected))
}

func TestDispatcher_ErrorIsolation(t *testing.T) {
	d := testDispatcher()

	secondCalled := false
	d.On(KindCallUpdate, "failing", func(_ context.Context, _ Event) error {
		return errors.New("boom")
	})
	d.On(KindCallUpdate, "second", func(_ context.Context, _ Event) error {
		secondCalled = true
		return nil
	})

	failed := d.Dispatch(context.Background(), CallUpdate{})
	assert.Equal(t, 1, failed)
	assert.True(t, secondCalled, "second handler should run despite first failing")
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	m := metrics.New()
	d := NewDispatcher(logging.New(nil, "silent"), m)

	secondCalled := false
	d.On(KindNewMessage, "panicking", func(_ context.Context, _ Event) error {
		panic("handler exploded")
	})
	d.On(KindNewMessage, "second", func(_ context.Context, _ Event) error {
		secondCalled = true
		return nil
	})

	var failed int
	assert.NotPanics(t, func() {
		failed = d.Dispatch(context.Background(), NewMessage{ChatID: 1})
	})
	assert.Equal(t, 1, failed)
	assert.True(t, secondCalled)
}

func TestDispatcher_NoHandlers(t *testing.T) {
	d := testDispatcher()
	assert.Equal(t, 0, d.Dispatch(context.Background(), Reconnected{}))
}

func TestDispatcher_Off(t *testing.T) {
	d := testDispatcher()

	var called []string
	d.On(KindConnected, "keep", func(_ context.Context, _ Event) error {
		called = append(called, "keep")
		return nil
	})
	d.On(KindConnected, "drop", func(_ context.Context, _ Event) error {
		called = append(called, "drop")
		return nil
	})

	d.Off(KindConnected, "drop")
	d.Dispatch(context.Background(), Connected{})
	assert.Equal(t, []string{"keep"}, called)
	assert.Equal(t, 1, d.Count(KindConnected))
}

func TestDispatcher_HandlerMayRegister(t *testing.T) {
	d := testDispatcher()

	d.On(KindConnected, "registrar", func(_ context.Context, _ Event) error {
		d.On(KindConnected, "late", func(_ context.Context, _ Event) error { return nil })
		return nil
	})

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), Connected{}) })
	assert.Equal(t, 2, d.Count(KindConnected))
}

func TestDispatcher_Kinds(t *testing.T) {
	d := testDispatcher()
	d.On(KindCallUpdate, "a", func(_ context.Context, _ Event) error { return nil })
	d.On(KindNewMessage, "b", func(_ context.Context, _ Event) error { return nil })
	d.Off(KindNewMessage, "b")

	assert.ElementsMatch(t, []Kind{KindCallUpdate}, d.Kinds())
}

func TestSubscribe_Typed(t *testing.T) {
	d := testDispatcher()

	var got VoiceActivity
	Subscribe(d, "typed", func(_ context.Context, evt VoiceActivity) error {
		got = evt
		return nil
	})

	require.Equal(t, 1, d.Count(KindVoiceActivity))
	d.Dispatch(context.Background(), VoiceActivity{CallID: 9, Active: true})
	assert.Equal(t, VoiceActivity{CallID: 9, Active: true}, got)
}
