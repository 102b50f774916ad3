package domain

import "slices"

// Chat is a conversation with an agent. Messages is append-only and in
// arrival order.
type Chat struct {
	ID            int64     `json:"id"`
	Title         *string   `json:"title"`
	AgentConfigID int64     `json:"agentConfigId"`
	AgentName     string    `json:"agentName,omitempty"`
	CreatedAt     Timestamp `json:"createdAt"`
	Messages      []Message `json:"messages,omitempty"`
	MessageCount  int       `json:"messageCount"`
}

// Clone returns a copy whose message slice is not shared.
func (c Chat) Clone() Chat {
	out := c
	out.Messages = slices.Clone(c.Messages)
	if c.Title != nil {
		t := *c.Title
		out.Title = &t
	}
	return out
}

// WithMessage returns a copy of c with m appended and the count bumped.
func (c Chat) WithMessage(m Message) Chat {
	out := c.Clone()
	out.Messages = append(out.Messages, m)
	out.MessageCount++
	return out
}

// CreateChatRequest opens a chat with an agent.
type CreateChatRequest struct {
	AgentConfigID int64   `json:"agentConfigId"`
	Title         *string `json:"title,omitempty"`
}

// UpdateChatRequest renames a chat.
type UpdateChatRequest struct {
	Title *string `json:"title,omitempty"`
}
