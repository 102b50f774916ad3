package domain

import "slices"

// Account is a SIP account as reported by the backend. AccountID is the
// merge key; ID is the backend's row id.
type Account struct {
	ID            int64     `json:"id"`
	AccountID     string    `json:"accountId"`
	Username      string    `json:"username"`
	Domain        string    `json:"domain"`
	RegistrarURI  string    `json:"registrarUri"`
	CreatedAt     Timestamp `json:"createdAt"`
	IsActive      bool      `json:"isActive"`
	AgentConfigID *int64    `json:"agentConfigId"`
	AgentName     string    `json:"agentName,omitempty"`
	Calls         []Call    `json:"calls,omitempty"`
	CallCount     int       `json:"callCount"`
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	out := a
	out.Calls = slices.Clone(a.Calls)
	if a.AgentConfigID != nil {
		id := *a.AgentConfigID
		out.AgentConfigID = &id
	}
	return out
}

// CreateAccountRequest registers a new SIP account.
type CreateAccountRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Domain        string `json:"domain"`
	RegistrarURI  string `json:"registrarUri"`
	AgentConfigID int64  `json:"agentConfigId"`
}

// UpdateAccountRequest is the generic account update body.
type UpdateAccountRequest struct {
	AgentConfigID *int64 `json:"agentConfigId,omitempty"`
}

// UpdateAccountAgentRequest reassigns the agent serving an account.
type UpdateAccountAgentRequest struct {
	AgentConfigID int64 `json:"agentConfigId"`
}

// ReRegisterResult summarises a bulk re-registration.
type ReRegisterResult struct {
	SuccessCount int               `json:"successCount"`
	FailureCount int               `json:"failureCount"`
	Errors       map[string]string `json:"errors,omitempty"`
}
