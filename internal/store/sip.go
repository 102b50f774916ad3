package store

import (
	"context"
	"maps"
	"strconv"

	"github.com/soyeahso/sipdash/internal/api"
	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/soyeahso/sipdash/internal/events"
	"github.com/soyeahso/sipdash/internal/hub"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
	"github.com/soyeahso/sipdash/internal/subscription"
	"github.com/soyeahso/sipdash/internal/supervisor"
)

// SIPOptions wires a SIPStore.
type SIPOptions struct {
	API           *api.Client
	Hub           Hub
	Dispatcher    *events.Dispatcher
	Subscriptions *subscription.Registry
	Supervisor    *supervisor.Supervisor
	Log           *logging.Logger
	Metrics       *metrics.Metrics
}

// SIPState is a snapshot of a SIPStore.
type SIPState struct {
	Accounts      []domain.Account
	ActiveAccount *domain.Account
	ActiveCalls   []domain.Call
	VoiceActivity map[int64]bool
	MediaState    map[int64]string
	Loading       bool
	Error         string
	Connected     bool
}

// SIPStore owns SIP accounts and active calls.
type SIPStore struct {
	core

	api  *api.Client
	hub  Hub
	subs *subscription.Registry
	sup  *supervisor.Supervisor

	accounts      []domain.Account
	activeAccount *domain.Account
	activeCalls   []domain.Call
	voice         map[int64]bool
	media         map[int64]string
}

func accountKey(a domain.Account) string { return a.AccountID }
func callKey(c domain.Call) int64        { return c.CallID }

// NewSIPStore creates the store and registers its push handlers on the
// dispatcher. Handlers are registered exactly once, here.
func NewSIPStore(opts SIPOptions) *SIPStore {
	s := &SIPStore{
		api:   opts.API,
		hub:   opts.Hub,
		subs:  opts.Subscriptions,
		sup:   opts.Supervisor,
		voice: make(map[int64]bool),
		media: make(map[int64]string),
	}
	s.init("sip", opts.Log, opts.Metrics)

	d := opts.Dispatcher
	s.sup.Track(d)
	s.subs.Attach(d)

	events.Subscribe(d, "sip-store", func(_ context.Context, e events.AccountUpdate) error {
		s.MergeAccount(e.Account)
		return nil
	})
	events.Subscribe(d, "sip-store", func(_ context.Context, e events.AccountListUpdate) error {
		s.MergeAccount(e.Account)
		return nil
	})
	events.Subscribe(d, "sip-store", func(_ context.Context, e events.CallUpdate) error {
		s.MergeCall(e.Call)
		return nil
	})
	events.Subscribe(d, "sip-store", func(_ context.Context, e events.CallListUpdate) error {
		s.MergeCall(e.Call)
		return nil
	})
	events.Subscribe(d, "sip-store", func(_ context.Context, e events.VoiceActivity) error {
		s.mutate(func() { s.voice[e.CallID] = e.Active })
		return nil
	})
	events.Subscribe(d, "sip-store", func(_ context.Context, e events.MediaStateChange) error {
		s.mutate(func() { s.media[e.CallID] = e.State })
		return nil
	})
	// Connectivity changes are state changes for watchers.
	events.Subscribe(d, "sip-store", func(context.Context, events.Connected) error {
		s.notify()
		return nil
	})
	events.Subscribe(d, "sip-store", func(context.Context, events.Disconnected) error {
		s.notify()
		return nil
	})
	return s
}

// --- push merges ---

// MergeAccount upserts a pushed account snapshot, refreshing the active
// account when it is the same one. The latest arrival wins.
func (s *SIPStore) MergeAccount(a domain.Account) {
	a = a.Clone()
	s.mutate(func() {
		s.accounts = upsert(s.accounts, a, accountKey)
		if s.activeAccount != nil && s.activeAccount.AccountID == a.AccountID {
			active := a.Clone()
			s.activeAccount = &active
		}
	})
}

// MergeCall upserts a pushed call snapshot. A terminal status removes the
// call along with its voice and media state.
func (s *SIPStore) MergeCall(c domain.Call) {
	s.mutate(func() { s.mergeCallLocked(c) })
}

func (s *SIPStore) mergeCallLocked(c domain.Call) {
	if c.Status.Terminal() {
		s.activeCalls = without(s.activeCalls, c.CallID, callKey)
		delete(s.voice, c.CallID)
		delete(s.media, c.CallID)
		return
	}
	s.activeCalls = upsert(s.activeCalls, c, callKey)
}

// --- connection ---

// InitializeConnection connects the SIP hub, retrying under the
// supervisor, then loads the account list once. Only the connect step is
// retried: a failed fetch sets Error but still reports true, since the hub
// is up. On connect failure Error holds the reason.
func (s *SIPStore) InitializeConnection(ctx context.Context) bool {
	err := s.sup.Run(ctx, func(ctx context.Context) error {
		if s.hub.State() == hub.StateConnected {
			return nil
		}
		return s.hub.Connect(ctx)
	})
	if err != nil {
		s.mutate(func() { s.err = err.Error() })
		s.fail("initialize", err.Error())
		return false
	}
	s.FetchAccounts(ctx)
	return true
}

// DisconnectSip closes the hub. No reconnect follows.
func (s *SIPStore) DisconnectSip() {
	if err := s.hub.Disconnect(); err != nil {
		s.log.Debug().Err(err).Msg("disconnect")
	}
	s.sup.SetConnected(false)
	s.notify()
}

// SubscribeToAccount asks the hub for one account's updates. The topic is
// replayed after reconnects even when this join fails.
func (s *SIPStore) SubscribeToAccount(ctx context.Context, accountID int64) bool {
	if err := s.subs.Join(ctx, subscription.AccountTopic(accountID)); err != nil {
		s.log.Warn().Err(err).Int64("account", accountID).Msg("account subscription pending")
		return false
	}
	return true
}

// --- accounts ---

func (s *SIPStore) FetchAccounts(ctx context.Context) []domain.Account {
	s.begin()
	resp := s.api.Accounts().List(ctx)
	if !resp.Success {
		s.settle("fetch_accounts", resp.Message("Failed to fetch accounts"), nil)
		return nil
	}
	s.settle("fetch_accounts", "", func() {
		s.accounts = cloneAccounts(resp.Data)
	})
	return cloneAccounts(resp.Data)
}

// FetchAccount loads one account and merges it.
func (s *SIPStore) FetchAccount(ctx context.Context, accountID string) *domain.Account {
	s.begin()
	resp := s.api.Accounts().Get(ctx, accountID)
	if !resp.Success {
		s.settle("fetch_account", resp.Message("Failed to fetch account"), nil)
		return nil
	}
	a := resp.Data
	s.settle("fetch_account", "", func() {
		s.accounts = upsert(s.accounts, a.Clone(), accountKey)
	})
	return &a
}

func (s *SIPStore) RegisterAccount(ctx context.Context, req domain.CreateAccountRequest) *domain.Account {
	s.begin()
	resp := s.api.Accounts().Register(ctx, req)
	if !resp.Success {
		s.settle("register_account", resp.Message("Failed to register account"), nil)
		return nil
	}
	a := resp.Data
	s.settle("register_account", "", func() {
		s.accounts = upsert(s.accounts, a.Clone(), accountKey)
	})
	return &a
}

// UpdateAccountAgent assigns an agent to an account.
func (s *SIPStore) UpdateAccountAgent(ctx context.Context, accountID string, agentConfigID int64) *domain.Account {
	s.begin()
	resp := s.api.Accounts().UpdateAgent(ctx, accountID, agentConfigID)
	if !resp.Success {
		s.settle("update_account_agent", resp.Message("Failed to update account agent"), nil)
		return nil
	}
	a := resp.Data
	s.settle("update_account_agent", "", func() {
		s.accounts = replace(s.accounts, a.Clone(), accountKey)
		if s.activeAccount != nil && s.activeAccount.AccountID == accountID {
			active := a.Clone()
			s.activeAccount = &active
		}
	})
	return &a
}

func (s *SIPStore) DeleteAccount(ctx context.Context, accountID string) bool {
	s.begin()
	resp := s.api.Accounts().Delete(ctx, accountID)
	if !resp.Success {
		s.settle("delete_account", resp.Message("Failed to delete account"), nil)
		return false
	}
	s.settle("delete_account", "", func() {
		s.accounts = without(s.accounts, accountID, accountKey)
		if s.activeAccount != nil && s.activeAccount.AccountID == accountID {
			s.activeAccount = nil
		}
	})
	return true
}

// ReRegisterAllAccounts triggers re-registration. Updated accounts arrive
// as push events.
func (s *SIPStore) ReRegisterAllAccounts(ctx context.Context) bool {
	s.begin()
	resp := s.api.Accounts().ReRegisterAll(ctx)
	if !resp.Success {
		s.settle("reregister", resp.Message("Failed to re-register accounts"), nil)
		return false
	}
	s.settle("reregister", "", nil)
	return true
}

// SetActiveAccount selects the account with the given id; "" clears the
// selection. It reports whether the account was found.
func (s *SIPStore) SetActiveAccount(accountID string) bool {
	found := false
	s.mutate(func() {
		if accountID == "" {
			s.activeAccount = nil
			found = true
			return
		}
		if a, ok := find(s.accounts, accountID, accountKey); ok {
			a = a.Clone()
			s.activeAccount = &a
			found = true
		}
	})
	return found
}

// --- calls ---

// FetchCalls replaces the active call list with the backend's view.
func (s *SIPStore) FetchCalls(ctx context.Context) []domain.Call {
	s.begin()
	resp := s.api.Calls().List(ctx)
	if !resp.Success {
		s.settle("fetch_calls", resp.Message("Failed to fetch calls"), nil)
		return nil
	}
	s.settle("fetch_calls", "", func() {
		s.activeCalls = nil
		for _, c := range resp.Data {
			s.mergeCallLocked(c)
		}
	})
	return append([]domain.Call(nil), resp.Data...)
}

// MakeCall places a call from accountID, subscribes to its updates and
// adds it to the active calls.
func (s *SIPStore) MakeCall(ctx context.Context, accountID, destination string) *domain.Call {
	s.begin()
	resp := s.api.Calls().Make(ctx, domain.MakeCallRequest{AccountID: accountID, Destination: destination})
	if !resp.Success {
		s.settle("make_call", resp.Message("Failed to make call"), nil)
		return nil
	}
	c := resp.Data
	if err := s.subs.Join(ctx, subscription.CallTopic(c.CallID)); err != nil {
		s.log.Warn().Err(err).Int64("call", c.CallID).Msg("call subscription pending")
	}
	s.settle("make_call", "", func() { s.mergeCallLocked(c) })
	return &c
}

// HangupCall asks the backend to end a call. The call leaves ActiveCalls
// when the terminal CallUpdate arrives.
func (s *SIPStore) HangupCall(ctx context.Context, callID int64) bool {
	return s.callAction("hangup", "Failed to hang up call", s.api.Calls().Hangup(ctx, callID))
}

func (s *SIPStore) HoldCall(ctx context.Context, callID int64) bool {
	return s.callAction("hold", "Failed to hold call", s.api.Calls().Hold(ctx, callID))
}

func (s *SIPStore) UnholdCall(ctx context.Context, callID int64) bool {
	return s.callAction("unhold", "Failed to resume call", s.api.Calls().Unhold(ctx, callID))
}

func (s *SIPStore) MuteCall(ctx context.Context, callID int64) bool {
	return s.callAction("mute", "Failed to mute call", s.api.Calls().Mute(ctx, callID))
}

func (s *SIPStore) UnmuteCall(ctx context.Context, callID int64) bool {
	return s.callAction("unmute", "Failed to unmute call", s.api.Calls().Unmute(ctx, callID))
}

func (s *SIPStore) SendDTMF(ctx context.Context, callID int64, digits string) bool {
	return s.callAction("dtmf", "Failed to send DTMF", s.api.Calls().SendDTMF(ctx, callID, digits))
}

// callAction handles the call controls, which do not toggle loading and
// leave state changes to push events.
func (s *SIPStore) callAction(op, fallback string, resp api.Response[struct{}]) bool {
	if resp.Success {
		return true
	}
	msg := resp.Message(fallback)
	s.mutate(func() { s.err = msg })
	s.fail(op, msg)
	return false
}

// --- selectors ---

// State returns a deep snapshot.
func (s *SIPStore) State() SIPState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SIPState{
		Accounts:      cloneAccounts(s.accounts),
		ActiveCalls:   append([]domain.Call(nil), s.activeCalls...),
		VoiceActivity: maps.Clone(s.voice),
		MediaState:    maps.Clone(s.media),
		Loading:       s.loading,
		Error:         s.err,
		Connected:     s.sup.Connected(),
	}
	if s.activeAccount != nil {
		a := s.activeAccount.Clone()
		st.ActiveAccount = &a
	}
	return st
}

func (s *SIPStore) Accounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAccounts(s.accounts)
}

func (s *SIPStore) ActiveCalls() []domain.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Call(nil), s.activeCalls...)
}

// Connected reports whether the SIP hub is usable.
func (s *SIPStore) Connected() bool {
	return s.sup.Connected()
}

func (s *SIPStore) AccountByID(accountID string) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := find(s.accounts, accountID, accountKey)
	return a.Clone(), ok
}

func (s *SIPStore) ActiveCallByID(callID int64) (domain.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return find(s.activeCalls, callID, callKey)
}

// CallsByAccountID returns the active calls of an account. The id is the
// account's numeric row id in string form; anything else matches nothing.
func (s *SIPStore) CallsByAccountID(accountID string) []domain.Call {
	id, err := strconv.ParseInt(accountID, 10, 64)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Call
	for _, c := range s.activeCalls {
		if c.AccountID == id {
			out = append(out, c)
		}
	}
	return out
}

func cloneAccounts(in []domain.Account) []domain.Account {
	if in == nil {
		return nil
	}
	out := make([]domain.Account, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
