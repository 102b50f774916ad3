package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/sipdash/internal/api"
	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
	"github.com/soyeahso/sipdash/internal/persist"
)

// AgentStorageKey is where the agent list and selection are persisted.
const AgentStorageKey = "agent-storage"

// AgentOptions wires an AgentStore. KV may be nil to disable persistence.
type AgentOptions struct {
	API     *api.Client
	KV      persist.KV
	Log     *logging.Logger
	Metrics *metrics.Metrics
}

// AgentState is a snapshot of an AgentStore.
type AgentState struct {
	Agents          []domain.AgentConfig
	SelectedAgentID *int64
	Loading         bool
	Error           string
}

// agentDocument is the persisted form.
type agentDocument struct {
	Agents          []domain.AgentConfig `json:"agents"`
	SelectedAgentID *int64               `json:"selectedAgentId"`
}

// AgentStore owns agent configurations and the selected agent. The list
// and selection survive restarts through Load and Save.
type AgentStore struct {
	core

	api *api.Client
	kv  persist.KV

	agents   []domain.AgentConfig
	selected *int64
}

func agentKey(a domain.AgentConfig) int64 { return a.ID }

func NewAgentStore(opts AgentOptions) *AgentStore {
	s := &AgentStore{api: opts.API, kv: opts.KV}
	s.init("agent", opts.Log, opts.Metrics)
	return s
}

// Load restores the persisted list and selection. A missing document
// leaves the store empty.
func (s *AgentStore) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	var doc agentDocument
	err := persist.GetJSON(ctx, s.kv, AgentStorageKey, &doc)
	if errors.Is(err, persist.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}
	s.mutate(func() {
		s.agents = doc.Agents
		s.selected = doc.SelectedAgentID
	})
	s.log.Debug().Int("agents", len(doc.Agents)).Msg("restored agent state")
	return nil
}

// Save writes the list and selection.
func (s *AgentStore) Save(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	s.mu.RLock()
	doc := agentDocument{
		Agents:          cloneAgents(s.agents),
		SelectedAgentID: copyID(s.selected),
	}
	s.mu.RUnlock()
	if doc.Agents == nil {
		doc.Agents = []domain.AgentConfig{}
	}
	if err := persist.PutJSON(ctx, s.kv, AgentStorageKey, doc); err != nil {
		return fmt.Errorf("saving agents: %w", err)
	}
	return nil
}

// saveQuietly saves after a mutation; failures are logged, not surfaced.
func (s *AgentStore) saveQuietly(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		s.log.Warn().Err(err).Msg("persisting agent state")
	}
}

func (s *AgentStore) FetchAgents(ctx context.Context) []domain.AgentConfig {
	s.begin()
	resp := s.api.Agents().List(ctx)
	if !resp.Success {
		s.settle("fetch_agents", resp.Message("Failed to fetch agents"), nil)
		return nil
	}
	s.settle("fetch_agents", "", func() {
		s.agents = cloneAgents(resp.Data)
	})
	s.saveQuietly(ctx)
	return resp.Data
}

func (s *AgentStore) CreateAgent(ctx context.Context, req domain.CreateAgentRequest) *domain.AgentConfig {
	s.begin()
	resp := s.api.Agents().Create(ctx, req)
	if !resp.Success {
		s.settle("create_agent", resp.Message("Failed to create agent"), nil)
		return nil
	}
	a := resp.Data
	s.settle("create_agent", "", func() {
		s.agents = upsert(s.agents, a.Clone(), agentKey)
	})
	s.saveQuietly(ctx)
	return &a
}

func (s *AgentStore) UpdateAgent(ctx context.Context, id int64, req domain.UpdateAgentRequest) *domain.AgentConfig {
	s.begin()
	resp := s.api.Agents().Update(ctx, id, req)
	if !resp.Success {
		s.settle("update_agent", resp.Message("Failed to update agent"), nil)
		return nil
	}
	a := resp.Data
	s.settle("update_agent", "", func() {
		s.agents = replace(s.agents, a.Clone(), agentKey)
	})
	s.saveQuietly(ctx)
	return &a
}

// DeleteAgent removes an agent, clearing the selection if it pointed there.
func (s *AgentStore) DeleteAgent(ctx context.Context, id int64) bool {
	s.begin()
	resp := s.api.Agents().Delete(ctx, id)
	if !resp.Success {
		s.settle("delete_agent", resp.Message("Failed to delete agent"), nil)
		return false
	}
	s.settle("delete_agent", "", func() {
		s.agents = without(s.agents, id, agentKey)
		if s.selected != nil && *s.selected == id {
			s.selected = nil
		}
	})
	s.saveQuietly(ctx)
	return true
}

// SetSelectedAgentID selects an agent by id; nil clears the selection.
// The id is not checked against the list.
func (s *AgentStore) SetSelectedAgentID(ctx context.Context, id *int64) {
	s.mutate(func() { s.selected = copyID(id) })
	s.saveQuietly(ctx)
}

// --- selectors ---

func (s *AgentStore) State() AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AgentState{
		Agents:          cloneAgents(s.agents),
		SelectedAgentID: copyID(s.selected),
		Loading:         s.loading,
		Error:           s.err,
	}
}

func (s *AgentStore) Agents() []domain.AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAgents(s.agents)
}

func (s *AgentStore) SelectedAgentID() *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyID(s.selected)
}

func (s *AgentStore) AgentByID(id int64) (domain.AgentConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := find(s.agents, id, agentKey)
	return a.Clone(), ok
}

// SelectedAgent returns the selected agent if it is in the list.
func (s *AgentStore) SelectedAgent() (domain.AgentConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return domain.AgentConfig{}, false
	}
	a, ok := find(s.agents, *s.selected, agentKey)
	return a.Clone(), ok
}

func cloneAgents(in []domain.AgentConfig) []domain.AgentConfig {
	if in == nil {
		return nil
	}
	out := make([]domain.AgentConfig, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
