package hub_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/hub/hubtest"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func newConn(t *testing.T, url string, token string) *hub.Conn {
	t.Helper()
	opts := hub.Options{
		Name:            "test",
		URL:             url,
		ReconnectDelays: []time.Duration{10 * time.Millisecond},
		Client:          hub.ClientInfo{ID: "sipdash-test", Version: "dev", Platform: "test"},
	}
	if token != "" {
		opts.Token = func() (string, error) { return token, nil }
	}
	c := hub.New(opts, events.NewDispatcher(testLog(), nil), testLog(), nil)
	t.Cleanup(func() { c.Disconnect() })
	return c
}

// signal returns a channel that receives once per dispatched event of kind.
func signal(c *hub.Conn, kind events.Kind) <-chan events.Event {
	ch := make(chan events.Event, 16)
	c.On(kind, "test-signal", func(_ context.Context, evt events.Event) error {
		ch <- evt
		return nil
	})
	return ch
}

func await(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestInvoke_BeforeConnect(t *testing.T) {
	c := newConn(t, "ws://127.0.0.1:1/hubs/sip", "")
	_, err := c.Invoke(context.Background(), "JoinGroup", "chat_1")
	assert.ErrorIs(t, err, hub.ErrNotConnected)
	assert.Equal(t, hub.StateDisconnected, c.State())
}

func TestConnect_AndInvoke(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()
	srv.Handle("Echo", func(inv hubtest.Invocation) (any, *hub.ErrorShape) {
		var s string
		inv.Arg(0, &s)
		return s, nil
	})

	c := newConn(t, srv.URL(), "")
	connected := signal(c, events.KindConnected)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, hub.StateConnected, c.State())
	await(t, connected)

	payload, err := c.Invoke(context.Background(), "Echo", "hello")
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(payload))

	invs := srv.InvocationsOf("Echo")
	require.Len(t, invs, 1)
	var arg string
	require.NoError(t, invs[0].Arg(0, &arg))
	assert.Equal(t, "hello", arg)
}

func TestConnect_Idempotent(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, srv.ConnCount())
}

func TestConnect_BadToken(t *testing.T) {
	srv := hubtest.NewServer(hubtest.WithToken("secret"))
	defer srv.Close()

	c := newConn(t, srv.URL(), "wrong")
	err := c.Connect(context.Background())
	require.Error(t, err)

	var ce *hub.ConnectionError
	require.ErrorAs(t, err, &ce)
	var ie *hub.InvokeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "unauthorized", ie.Code)
	assert.Equal(t, hub.StateDisconnected, c.State())
}

func TestConnect_GoodToken(t *testing.T) {
	srv := hubtest.NewServer(hubtest.WithToken("secret"))
	defer srv.Close()

	c := newConn(t, srv.URL(), "secret")
	require.NoError(t, c.Connect(context.Background()))
}

func TestConnect_Unreachable(t *testing.T) {
	srv := hubtest.NewServer()
	url := srv.URL()
	srv.Close()

	c := newConn(t, url, "")
	err := c.Connect(context.Background())
	var ce *hub.ConnectionError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, hub.StateDisconnected, c.State())
}

func TestInvoke_Rejected(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()
	srv.Reject("JoinGroup", "forbidden", "not a member")

	c := newConn(t, srv.URL(), "")
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Invoke(context.Background(), "JoinGroup", "chat_9")
	var ie *hub.InvokeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "forbidden", ie.Code)
	assert.Equal(t, "not a member", ie.Message)
}

func TestInvoke_ContextCancelled(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()
	block := make(chan struct{})
	defer close(block)
	srv.Handle("Slow", func(hubtest.Invocation) (any, *hub.ErrorShape) {
		<-block
		return nil, nil
	})

	c := newConn(t, srv.URL(), "")
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, "Slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvents_Dispatched(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	calls := signal(c, events.KindCallUpdate)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, srv.Broadcast("CallUpdate", domain.Call{CallID: 42, Status: domain.CallRinging}))

	evt := await(t, calls)
	cu, ok := evt.(events.CallUpdate)
	require.True(t, ok)
	assert.Equal(t, int64(42), cu.Call.CallID)
	assert.Equal(t, domain.CallRinging, cu.Call.Status)
}

func TestEvents_UnknownIgnored(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	voice := signal(c, events.KindVoiceActivity)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, srv.Broadcast("SomethingNew", 1))
	require.NoError(t, srv.Broadcast("VoiceActivity", 3, true))

	evt := await(t, voice)
	assert.Equal(t, events.VoiceActivity{CallID: 3, Active: true}, evt)
}

func TestEvents_SerialInOrder(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	done := make(chan struct{})
	var got []int64
	inHandler := false
	c.On(events.KindNewMessage, "collector", func(_ context.Context, evt events.Event) error {
		if inHandler {
			t.Error("handlers overlapped")
		}
		inHandler = true
		time.Sleep(time.Millisecond)
		got = append(got, evt.(events.NewMessage).Message.ID)
		inHandler = false
		if len(got) == 20 {
			close(done)
		}
		return nil
	})
	require.NoError(t, c.Connect(context.Background()))

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, srv.Broadcast("NewMessage", domain.Message{ID: i, ChatID: 1}, 1))
	}

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out")
	}
	for i, id := range got {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestReconnect_AfterDrop(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	disconnected := signal(c, events.KindDisconnected)
	reconnected := signal(c, events.KindReconnected)
	require.NoError(t, c.Connect(context.Background()))

	srv.DropAll()

	evt := await(t, disconnected)
	assert.Error(t, evt.(events.Disconnected).Err)
	await(t, reconnected)

	assert.Equal(t, hub.StateConnected, c.State())
	_, err := c.Invoke(context.Background(), "Ping")
	assert.NoError(t, err)
}

func TestReconnect_InvokeFailsFastWhileReconnecting(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	disconnected := signal(c, events.KindDisconnected)
	reconnected := signal(c, events.KindReconnected)
	require.NoError(t, c.Connect(context.Background()))

	srv.Refuse(true)
	srv.DropAll()
	await(t, disconnected)

	assert.Equal(t, hub.StateReconnecting, c.State())
	_, err := c.Invoke(context.Background(), "JoinGroup", "chat_1")
	assert.ErrorIs(t, err, hub.ErrNotConnected)

	srv.Refuse(false)
	await(t, reconnected)
	assert.Equal(t, hub.StateConnected, c.State())
}

func TestDisconnect_NoReconnect(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	disconnected := signal(c, events.KindDisconnected)
	reconnected := signal(c, events.KindReconnected)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Disconnect())
	evt := await(t, disconnected)
	assert.NoError(t, evt.(events.Disconnected).Err)

	assert.True(t, srv.WaitFor(waitTimeout, func(s *hubtest.Server) bool { return s.ConnCount() == 0 }))

	select {
	case <-reconnected:
		t.Fatal("reconnected after explicit disconnect")
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, hub.StateDisconnected, c.State())
	_, err := c.Invoke(context.Background(), "Ping")
	assert.True(t, errors.Is(err, hub.ErrNotConnected))
}

func TestDisconnect_ThenConnectAgain(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, hub.StateConnected, c.State())
}

func TestReconnect_EventsWaitForReconnectedHandlers(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	var replaying atomic.Bool
	started := make(chan struct{}, 1)
	c.On(events.KindReconnected, "slow-replay", func(context.Context, events.Event) error {
		replaying.Store(true)
		started <- struct{}{}
		time.Sleep(300 * time.Millisecond)
		replaying.Store(false)
		return nil
	})
	overlapped := make(chan bool, 1)
	c.On(events.KindNewMessage, "overlap-check", func(context.Context, events.Event) error {
		overlapped <- replaying.Load()
		return nil
	})
	require.NoError(t, c.Connect(context.Background()))

	srv.DropAll()
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for reconnect")
	}
	require.NoError(t, srv.Broadcast("NewMessage", domain.Message{ID: 1, ChatID: 1}, 1))

	select {
	case got := <-overlapped:
		assert.False(t, got, "NewMessage dispatched while Reconnected handler was running")
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for NewMessage")
	}
}

func TestReconnect_HandlerMayInvoke(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	replayed := make(chan error, 1)
	c.On(events.KindReconnected, "rejoin", func(ctx context.Context, _ events.Event) error {
		_, err := c.Invoke(ctx, "JoinGroup", "chat_1")
		replayed <- err
		return nil
	})
	require.NoError(t, c.Connect(context.Background()))

	srv.DropAll()
	select {
	case err := <-replayed:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Invoke from a Reconnected handler never returned")
	}
}

func TestConnect_ConnectedHandlersRunBeforeReturn(t *testing.T) {
	srv := hubtest.NewServer()
	defer srv.Close()

	c := newConn(t, srv.URL(), "")
	var seen atomic.Bool
	c.On(events.KindConnected, "flag", func(context.Context, events.Event) error {
		seen.Store(true)
		return nil
	})
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, seen.Load())
}
