package store

import (
	"context"
	"testing"
	"time"

	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/hub/hubtest"
	"github.com/soyeahso/sipdash/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	rest  *restBackend
	srv   *hubtest.Server
	conn  *hub.Conn
	subs  *subscription.Registry
	store *ChatStore
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{rest: newRESTBackend(t), srv: hubtest.NewServer()}
	t.Cleanup(f.srv.Close)

	d := events.NewDispatcher(testLogger(), nil)
	f.conn = hub.New(hub.Options{
		Name:            "chat",
		URL:             f.srv.URL(),
		ReconnectDelays: []time.Duration{10 * time.Millisecond},
	}, d, testLogger(), nil)
	t.Cleanup(func() { f.conn.Disconnect() })

	f.subs = subscription.NewRegistry(f.conn, testLogger())
	f.store = NewChatStore(ChatOptions{
		API:           f.rest.client(),
		Hub:           f.conn,
		Dispatcher:    d,
		Subscriptions: f.subs,
		Log:           testLogger(),
	})
	return f
}

func (f *chatFixture) connect(t *testing.T) {
	t.Helper()
	f.rest.on("GET /chats", 200, `[]`)
	require.True(t, f.store.InitializeConnection(context.Background()), f.store.Error())
}

const chatOne = `{"id":1,"title":"Support","agentConfigId":5,"messages":[{"id":10,"chatId":1,"content":"hi"}],"messageCount":1}`

func TestChat_InitializeConnection(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[`+chatOne+`]`)

	require.True(t, f.store.InitializeConnection(context.Background()))
	st := f.store.State()
	assert.True(t, st.Connected)
	require.Len(t, st.Chats, 1)
	assert.Equal(t, "Support", *st.Chats[0].Title)
}

func TestChat_InitializeConnection_Refused(t *testing.T) {
	f := newChatFixture(t)
	f.srv.Refuse(true)

	assert.False(t, f.store.InitializeConnection(context.Background()))
	st := f.store.State()
	assert.False(t, st.Connected)
	assert.Contains(t, st.Error, "Failed to connect to chat service: ")
	assert.Equal(t, 0, f.rest.count("GET /chats"))
}

func TestChat_Disconnect(t *testing.T) {
	f := newChatFixture(t)
	f.connect(t)
	f.store.Disconnect()
	assert.False(t, f.store.Connected())
}

func TestChat_FetchChats_Failure(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 503, `{}`)

	assert.Nil(t, f.store.FetchChats(context.Background()))
	assert.Equal(t, "Server error: 503", f.store.Error())
}

func TestChat_FetchChatsByAgent_Merges(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[{"id":1,"agentConfigId":5},{"id":2,"agentConfigId":6}]`)
	f.store.FetchChats(context.Background())

	f.rest.on("GET /chats/by-agent/5", 200, `[{"id":1,"agentConfigId":5,"messageCount":3},{"id":3,"agentConfigId":5}]`)
	got := f.store.FetchChatsByAgent(context.Background(), 5)
	assert.Len(t, got, 2)

	chats := f.store.Chats()
	require.Len(t, chats, 3)
	assert.Equal(t, 3, chats[0].MessageCount)
	assert.Len(t, f.store.ChatsByAgentID(5), 2)
	assert.Len(t, f.store.ChatsByAgentID(6), 1)
}

func TestChat_CreateChat(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("POST /chats", 201, `{"id":9,"agentConfigId":5,"title":null,"messageCount":0}`)

	c := f.store.CreateChat(context.Background(), 5, nil)
	require.NotNil(t, c)
	assert.Equal(t, int64(9), c.ID)
	assert.JSONEq(t, `{"agentConfigId":5}`, f.rest.body("POST /chats"))

	_, ok := f.store.ChatByID(9)
	assert.True(t, ok)
	assert.Nil(t, f.store.ActiveChat(), "creating does not select")
}

func TestChat_CreateChat_Failure(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("POST /chats", 404, `{"title":"Agent not found"}`)

	assert.Nil(t, f.store.CreateChat(context.Background(), 5, nil))
	assert.Equal(t, "Agent not found", f.store.Error())
	assert.Empty(t, f.store.Chats())
}

func TestChat_LoadChat(t *testing.T) {
	f := newChatFixture(t)
	f.connect(t)
	f.rest.on("GET /chats/1/with-messages", 200, chatOne)

	c := f.store.LoadChat(context.Background(), 1)
	require.NotNil(t, c)

	active := f.store.ActiveChat()
	require.NotNil(t, active)
	assert.Len(t, active.Messages, 1)
	assert.True(t, f.subs.Has(subscription.ChatGroup(1)))

	invs := f.srv.InvocationsOf(subscription.MethodJoinGroup)
	require.Len(t, invs, 1)
	var group string
	require.NoError(t, invs[0].Arg(0, &group))
	assert.Equal(t, "chat_1", group)
}

func TestChat_LoadChat_Failure(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats/1/with-messages", 404, ``)

	assert.Nil(t, f.store.LoadChat(context.Background(), 1))
	assert.Equal(t, "Server error: 404", f.store.Error())
	assert.False(t, f.subs.Has(subscription.ChatGroup(1)))
}

func TestChat_UpdateChat(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[`+chatOne+`]`)
	f.store.FetchChats(context.Background())
	require.True(t, f.store.SetActiveChat(1))
	f.rest.on("PUT /chats/1", 200, `{"id":1,"title":"Renamed","agentConfigId":5}`)

	c := f.store.UpdateChat(context.Background(), 1, "Renamed")
	require.NotNil(t, c)
	assert.JSONEq(t, `{"title":"Renamed"}`, f.rest.body("PUT /chats/1"))

	st := f.store.State()
	assert.Equal(t, "Renamed", *st.Chats[0].Title)
	assert.Equal(t, "Renamed", *st.ActiveChat.Title)
}

func TestChat_DeleteChat(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[`+chatOne+`,{"id":2}]`)
	f.store.FetchChats(context.Background())
	f.store.SetActiveChat(1)
	f.rest.on("DELETE /chats/1", 204, ``)

	require.True(t, f.store.DeleteChat(context.Background(), 1))
	st := f.store.State()
	assert.Nil(t, st.ActiveChat)
	require.Len(t, st.Chats, 1)
	assert.Equal(t, int64(2), st.Chats[0].ID)
}

func TestChat_SendMessage_NoLocalAppend(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[`+chatOne+`]`)
	f.store.FetchChats(context.Background())
	f.rest.on("POST /chats/1/messages", 201, `{"id":11,"chatId":1,"content":"hello"}`)

	m := f.store.SendMessage(context.Background(), 1, domain.CreateMessageRequest{ChatID: 1, Sender: "user", Content: "hello", IsUserMessage: true})
	require.NotNil(t, m)
	assert.Equal(t, int64(11), m.ID)

	c, _ := f.store.ChatByID(1)
	assert.Len(t, c.Messages, 1, "the echo arrives over the hub")
}

func TestChat_SendMessage_Failure(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("POST /chats/1/messages", 500, `{"error":"model offline"}`)

	assert.Nil(t, f.store.SendMessage(context.Background(), 1, domain.CreateMessageRequest{Content: "x"}))
	assert.Equal(t, "model offline", f.store.Error())
}

func TestChat_AppendMessage(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[`+chatOne+`]`)
	f.store.FetchChats(context.Background())
	f.store.SetActiveChat(1)

	f.store.AppendMessage(1, domain.Message{ID: 11, ChatID: 1})
	f.store.AppendMessage(99, domain.Message{ID: 12, ChatID: 99})

	st := f.store.State()
	assert.Len(t, st.Chats, 1, "unknown chat is not created")
	assert.Len(t, st.Chats[0].Messages, 2)
	assert.Equal(t, 2, st.Chats[0].MessageCount)
	assert.Len(t, st.ActiveChat.Messages, 2)
}

func TestChat_AppendMessage_NoDedup(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[{"id":1}]`)
	f.store.FetchChats(context.Background())

	m := domain.Message{ID: 11, ChatID: 1}
	f.store.AppendMessage(1, m)
	f.store.AppendMessage(1, m)

	c, _ := f.store.ChatByID(1)
	assert.Len(t, c.Messages, 2)
}

func TestChat_SetActiveChat(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[{"id":1}]`)
	f.store.FetchChats(context.Background())

	assert.False(t, f.store.SetActiveChat(7))
	assert.True(t, f.store.SetActiveChat(1))
	assert.Equal(t, int64(1), f.store.ActiveChat().ID)
	assert.True(t, f.store.SetActiveChat(0))
	assert.Nil(t, f.store.ActiveChat())
}

func TestChat_PushedMessages(t *testing.T) {
	f := newChatFixture(t)
	f.rest.on("GET /chats", 200, `[`+chatOne+`]`)
	require.True(t, f.store.InitializeConnection(context.Background()))

	require.NoError(t, f.srv.Broadcast("NewMessage", domain.Message{ID: 11, ChatID: 1, Content: "a"}, 1))
	require.NoError(t, f.srv.Broadcast("MessageReceived", domain.Message{ID: 12, ChatID: 1, Content: "b"}))

	assert.Eventually(t, func() bool {
		c, _ := f.store.ChatByID(1)
		return len(c.Messages) == 3
	}, 5*time.Second, 10*time.Millisecond)

	c, _ := f.store.ChatByID(1)
	assert.Equal(t, "a", c.Messages[1].Content)
	assert.Equal(t, "b", c.Messages[2].Content)
}

func TestChat_ReconnectRejoinsGroups(t *testing.T) {
	f := newChatFixture(t)
	f.connect(t)
	f.rest.on("GET /chats/1/with-messages", 200, chatOne)
	require.NotNil(t, f.store.LoadChat(context.Background(), 1))
	f.srv.ResetInvocations()

	f.srv.DropAll()

	ok := f.srv.WaitFor(5*time.Second, func(s *hubtest.Server) bool {
		return len(s.InvocationsOf(subscription.MethodJoinGroup)) >= 1
	})
	require.True(t, ok, "chat group was not rejoined")
	assert.Eventually(t, f.store.Connected, 5*time.Second, 10*time.Millisecond)
}
