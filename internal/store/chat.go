package store

import (
	"context"
	"fmt"

	"github.com/soyeahso/sipdash/internal/api"
	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
	"github.com/soyeahso/sipdash/internal/subscription"
)

// ChatOptions wires a ChatStore.
type ChatOptions struct {
	API           *api.Client
	Hub           Hub
	Dispatcher    *events.Dispatcher
	Subscriptions *subscription.Registry
	Log           *logging.Logger
	Metrics       *metrics.Metrics
}

// ChatState is a snapshot of a ChatStore.
type ChatState struct {
	Chats      []domain.Chat
	ActiveChat *domain.Chat
	Loading    bool
	Error      string
	Connected  bool
}

// ChatStore owns chats and their messages.
type ChatStore struct {
	core

	api  *api.Client
	hub  Hub
	subs *subscription.Registry

	chats      []domain.Chat
	activeChat *domain.Chat
	connected  bool
}

func chatKey(c domain.Chat) int64 { return c.ID }

// NewChatStore creates the store and registers its push handlers.
func NewChatStore(opts ChatOptions) *ChatStore {
	s := &ChatStore{
		api:  opts.API,
		hub:  opts.Hub,
		subs: opts.Subscriptions,
	}
	s.init("chat", opts.Log, opts.Metrics)

	d := opts.Dispatcher
	s.subs.Attach(d)
	events.Subscribe(d, "chat-store", func(_ context.Context, e events.NewMessage) error {
		s.AppendMessage(e.ChatID, e.Message)
		return nil
	})
	events.Subscribe(d, "chat-store", func(_ context.Context, e events.MessageReceived) error {
		s.AppendMessage(e.Message.ChatID, e.Message)
		return nil
	})
	events.Subscribe(d, "chat-store", func(context.Context, events.Connected) error {
		s.mutate(func() { s.connected = true })
		return nil
	})
	events.Subscribe(d, "chat-store", func(context.Context, events.Disconnected) error {
		s.mutate(func() { s.connected = false })
		return nil
	})
	return s
}

// AppendMessage adds m to the chat with chatID, in the list and in the
// active chat, and bumps its message count. Messages are not
// de-duplicated: the same message pushed twice appears twice.
func (s *ChatStore) AppendMessage(chatID int64, m domain.Message) {
	s.mutate(func() {
		for i, c := range s.chats {
			if c.ID == chatID {
				next := make([]domain.Chat, len(s.chats))
				copy(next, s.chats)
				next[i] = c.WithMessage(m)
				s.chats = next
				break
			}
		}
		if s.activeChat != nil && s.activeChat.ID == chatID {
			active := s.activeChat.WithMessage(m)
			s.activeChat = &active
		}
	})
}

// InitializeConnection connects the chat hub once, then loads the chat
// list. On failure Error holds the reason.
func (s *ChatStore) InitializeConnection(ctx context.Context) bool {
	if s.hub.State() != hub.StateConnected {
		if err := s.hub.Connect(ctx); err != nil {
			msg := fmt.Sprintf("Failed to connect to chat service: %v", err)
			s.mutate(func() {
				s.err = msg
				s.connected = false
			})
			s.fail("initialize", msg)
			return false
		}
	}
	s.mutate(func() { s.connected = true })
	s.FetchChats(ctx)
	return true
}

// Disconnect closes the chat hub.
func (s *ChatStore) Disconnect() {
	if err := s.hub.Disconnect(); err != nil {
		s.log.Debug().Err(err).Msg("disconnect")
	}
	s.mutate(func() { s.connected = false })
}

func (s *ChatStore) FetchChats(ctx context.Context) []domain.Chat {
	s.begin()
	resp := s.api.Chats().List(ctx)
	if !resp.Success {
		s.settle("fetch_chats", resp.Message("Failed to fetch chats"), nil)
		return nil
	}
	s.settle("fetch_chats", "", func() {
		s.chats = cloneChats(resp.Data)
	})
	return cloneChats(resp.Data)
}

// FetchChatsByAgent loads one agent's chats and merges them into the list.
func (s *ChatStore) FetchChatsByAgent(ctx context.Context, agentID int64) []domain.Chat {
	s.begin()
	resp := s.api.Chats().ByAgent(ctx, agentID)
	if !resp.Success {
		s.settle("fetch_chats_by_agent", resp.Message("Failed to fetch chats"), nil)
		return nil
	}
	s.settle("fetch_chats_by_agent", "", func() {
		for _, c := range resp.Data {
			s.chats = upsert(s.chats, c.Clone(), chatKey)
		}
	})
	return cloneChats(resp.Data)
}

// LoadChat fetches a chat with its messages, joins its group and makes it
// the active chat.
func (s *ChatStore) LoadChat(ctx context.Context, chatID int64) *domain.Chat {
	s.begin()
	resp := s.api.Chats().WithMessages(ctx, chatID)
	if !resp.Success {
		s.settle("load_chat", resp.Message("Failed to load chat"), nil)
		return nil
	}
	if err := s.subs.Join(ctx, subscription.ChatGroup(chatID)); err != nil {
		s.log.Warn().Err(err).Int64("chat", chatID).Msg("chat group join pending")
	}
	c := resp.Data
	s.settle("load_chat", "", func() {
		s.chats = replace(s.chats, c.Clone(), chatKey)
		active := c.Clone()
		s.activeChat = &active
	})
	return &c
}

// CreateChat opens a chat with an agent. title may be nil.
func (s *ChatStore) CreateChat(ctx context.Context, agentConfigID int64, title *string) *domain.Chat {
	s.begin()
	resp := s.api.Chats().Create(ctx, domain.CreateChatRequest{AgentConfigID: agentConfigID, Title: title})
	if !resp.Success {
		s.settle("create_chat", resp.Message("Failed to create chat"), nil)
		return nil
	}
	c := resp.Data
	s.settle("create_chat", "", func() {
		s.chats = upsert(s.chats, c.Clone(), chatKey)
	})
	return &c
}

func (s *ChatStore) UpdateChat(ctx context.Context, chatID int64, title string) *domain.Chat {
	s.begin()
	resp := s.api.Chats().Update(ctx, chatID, domain.UpdateChatRequest{Title: &title})
	if !resp.Success {
		s.settle("update_chat", resp.Message("Failed to update chat"), nil)
		return nil
	}
	c := resp.Data
	s.settle("update_chat", "", func() {
		s.chats = replace(s.chats, c.Clone(), chatKey)
		if s.activeChat != nil && s.activeChat.ID == chatID {
			active := c.Clone()
			s.activeChat = &active
		}
	})
	return &c
}

func (s *ChatStore) DeleteChat(ctx context.Context, chatID int64) bool {
	s.begin()
	resp := s.api.Chats().Delete(ctx, chatID)
	if !resp.Success {
		s.settle("delete_chat", resp.Message("Failed to delete chat"), nil)
		return false
	}
	s.settle("delete_chat", "", func() {
		s.chats = without(s.chats, chatID, chatKey)
		if s.activeChat != nil && s.activeChat.ID == chatID {
			s.activeChat = nil
		}
	})
	return true
}

// SendMessage posts a message. It does not touch local state: the message
// shows up when the hub pushes it back.
func (s *ChatStore) SendMessage(ctx context.Context, chatID int64, req domain.CreateMessageRequest) *domain.Message {
	s.begin()
	resp := s.api.Chats().AddMessage(ctx, chatID, req)
	if !resp.Success {
		s.settle("send_message", resp.Message("Failed to send message"), nil)
		return nil
	}
	s.settle("send_message", "", nil)
	m := resp.Data
	return &m
}

// SetActiveChat selects a chat from the list; 0 clears the selection.
func (s *ChatStore) SetActiveChat(chatID int64) bool {
	found := false
	s.mutate(func() {
		if chatID == 0 {
			s.activeChat = nil
			found = true
			return
		}
		if c, ok := find(s.chats, chatID, chatKey); ok {
			c = c.Clone()
			s.activeChat = &c
			found = true
		}
	})
	return found
}

// --- selectors ---

func (s *ChatStore) State() ChatState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := ChatState{
		Chats:     cloneChats(s.chats),
		Loading:   s.loading,
		Error:     s.err,
		Connected: s.connected,
	}
	if s.activeChat != nil {
		c := s.activeChat.Clone()
		st.ActiveChat = &c
	}
	return st
}

func (s *ChatStore) Chats() []domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChats(s.chats)
}

func (s *ChatStore) ActiveChat() *domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeChat == nil {
		return nil
	}
	c := s.activeChat.Clone()
	return &c
}

func (s *ChatStore) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *ChatStore) ChatByID(chatID int64) (domain.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := find(s.chats, chatID, chatKey)
	return c.Clone(), ok
}

func (s *ChatStore) ChatsByAgentID(agentID int64) []domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Chat
	for _, c := range s.chats {
		if c.AgentConfigID == agentID {
			out = append(out, c.Clone())
		}
	}
	return out
}

func cloneChats(in []domain.Chat) []domain.Chat {
	if in == nil {
		return nil
	}
	out := make([]domain.Chat, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
