package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/soyeahso/sipdash/internal/domain"
)

// Agents covers /agents.
type Agents struct{ c *Client }

// Agents returns the agent configuration endpoints.
func (c *Client) Agents() *Agents { return &Agents{c: c} }

const agentsPath = "/agents"

func agentPath(id int64) string {
	return agentsPath + "/" + strconv.FormatInt(id, 10)
}

func (s *Agents) List(ctx context.Context) Response[[]domain.AgentConfig] {
	return get[[]domain.AgentConfig](ctx, s.c, agentsPath, nil)
}

func (s *Agents) Get(ctx context.Context, id int64) Response[domain.AgentConfig] {
	return get[domain.AgentConfig](ctx, s.c, agentPath(id), nil)
}

// GetByAgentID looks an agent up by its external identifier.
func (s *Agents) GetByAgentID(ctx context.Context, agentID string) Response[domain.AgentConfig] {
	return get[domain.AgentConfig](ctx, s.c, agentsPath+"/by-agent-id/"+url.PathEscape(agentID), nil)
}

func (s *Agents) Exists(ctx context.Context, id int64) Response[bool] {
	return get[bool](ctx, s.c, agentsPath+"/exists/"+strconv.FormatInt(id, 10), nil)
}

func (s *Agents) ExistsByAgentID(ctx context.Context, agentID string) Response[bool] {
	return get[bool](ctx, s.c, agentsPath+"/exists/by-agent-id/"+url.PathEscape(agentID), nil)
}

func (s *Agents) Create(ctx context.Context, req domain.CreateAgentRequest) Response[domain.AgentConfig] {
	return post[domain.AgentConfig](ctx, s.c, agentsPath, req)
}

func (s *Agents) Update(ctx context.Context, id int64, req domain.UpdateAgentRequest) Response[domain.AgentConfig] {
	return put[domain.AgentConfig](ctx, s.c, agentPath(id), req)
}

func (s *Agents) Delete(ctx context.Context, id int64) Response[struct{}] {
	return del[struct{}](ctx, s.c, agentPath(id))
}
