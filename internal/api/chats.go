package api

import (
	"context"
	"strconv"

	"github.com/soyeahso/sipdash/internal/domain"
)

// Chats covers /chats.
type Chats struct{ c *Client }

// Chats returns the chat endpoints.
func (c *Client) Chats() *Chats { return &Chats{c: c} }

const chatsPath = "/chats"

func chatPath(chatID int64) string {
	return chatsPath + "/" + strconv.FormatInt(chatID, 10)
}

func (s *Chats) List(ctx context.Context) Response[[]domain.Chat] {
	return get[[]domain.Chat](ctx, s.c, chatsPath, nil)
}

func (s *Chats) ListPage(ctx context.Context, q domain.PageQuery) Response[domain.Page[domain.Chat]] {
	return get[domain.Page[domain.Chat]](ctx, s.c, chatsPath, q)
}

func (s *Chats) ByAgent(ctx context.Context, agentID int64) Response[[]domain.Chat] {
	return get[[]domain.Chat](ctx, s.c, chatsPath+"/by-agent/"+strconv.FormatInt(agentID, 10), nil)
}

func (s *Chats) ByAgentPage(ctx context.Context, agentID int64, q domain.PageQuery) Response[domain.Page[domain.Chat]] {
	return get[domain.Page[domain.Chat]](ctx, s.c, chatsPath+"/by-agent/"+strconv.FormatInt(agentID, 10), q)
}

func (s *Chats) Get(ctx context.Context, chatID int64) Response[domain.Chat] {
	return get[domain.Chat](ctx, s.c, chatPath(chatID), nil)
}

// WithMessages returns the chat including its full message history.
func (s *Chats) WithMessages(ctx context.Context, chatID int64) Response[domain.Chat] {
	return get[domain.Chat](ctx, s.c, chatPath(chatID)+"/with-messages", nil)
}

func (s *Chats) Create(ctx context.Context, req domain.CreateChatRequest) Response[domain.Chat] {
	return post[domain.Chat](ctx, s.c, chatsPath, req)
}

func (s *Chats) Update(ctx context.Context, chatID int64, req domain.UpdateChatRequest) Response[domain.Chat] {
	return put[domain.Chat](ctx, s.c, chatPath(chatID), req)
}

func (s *Chats) Delete(ctx context.Context, chatID int64) Response[struct{}] {
	return del[struct{}](ctx, s.c, chatPath(chatID))
}

func (s *Chats) Messages(ctx context.Context, chatID int64) Response[[]domain.Message] {
	return get[[]domain.Message](ctx, s.c, chatPath(chatID)+"/messages", nil)
}

func (s *Chats) MessagesPage(ctx context.Context, chatID int64, q domain.PageQuery) Response[domain.Page[domain.Message]] {
	return get[domain.Page[domain.Message]](ctx, s.c, chatPath(chatID)+"/messages", q)
}

// AddMessage posts a message. The backend echoes it over the chat hub.
func (s *Chats) AddMessage(ctx context.Context, chatID int64, req domain.CreateMessageRequest) Response[domain.Message] {
	return post[domain.Message](ctx, s.c, chatPath(chatID)+"/messages", req)
}

// Search matches chats by q.Query.
func (s *Chats) Search(ctx context.Context, q domain.PageQuery) Response[domain.Page[domain.Chat]] {
	return get[domain.Page[domain.Chat]](ctx, s.c, chatsPath+"/search", q)
}
