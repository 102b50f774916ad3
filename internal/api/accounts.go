package api

import (
	"context"
	"net/url"

	"github.com/soyeahso/sipdash/internal/domain"
)

// Accounts covers /sipaccounts.
type Accounts struct{ c *Client }

// Accounts returns the SIP account endpoints.
func (c *Client) Accounts() *Accounts { return &Accounts{c: c} }

const accountsPath = "/sipaccounts"

func accountPath(accountID string) string {
	return accountsPath + "/" + url.PathEscape(accountID)
}

func (a *Accounts) List(ctx context.Context) Response[[]domain.Account] {
	return get[[]domain.Account](ctx, a.c, accountsPath, nil)
}

func (a *Accounts) ListPage(ctx context.Context, q domain.PageQuery) Response[domain.Page[domain.Account]] {
	return get[domain.Page[domain.Account]](ctx, a.c, accountsPath, q)
}

func (a *Accounts) Get(ctx context.Context, accountID string) Response[domain.Account] {
	return get[domain.Account](ctx, a.c, accountPath(accountID), nil)
}

func (a *Accounts) Register(ctx context.Context, req domain.CreateAccountRequest) Response[domain.Account] {
	return post[domain.Account](ctx, a.c, accountsPath, req)
}

func (a *Accounts) Update(ctx context.Context, accountID string, req domain.UpdateAccountRequest) Response[domain.Account] {
	return put[domain.Account](ctx, a.c, accountPath(accountID), req)
}

// UpdateAgent reassigns the agent serving an account.
func (a *Accounts) UpdateAgent(ctx context.Context, accountID string, agentConfigID int64) Response[domain.Account] {
	return put[domain.Account](ctx, a.c, accountPath(accountID)+"/agent",
		domain.UpdateAccountAgentRequest{AgentConfigID: agentConfigID})
}

func (a *Accounts) Delete(ctx context.Context, accountID string) Response[struct{}] {
	return del[struct{}](ctx, a.c, accountPath(accountID))
}

// Clear deletes every account.
func (a *Accounts) Clear(ctx context.Context) Response[struct{}] {
	return del[struct{}](ctx, a.c, accountsPath)
}

// ReRegisterAll asks the backend to re-register every account with its
// registrar.
func (a *Accounts) ReRegisterAll(ctx context.Context) Response[domain.ReRegisterResult] {
	return post[domain.ReRegisterResult](ctx, a.c, accountsPath+"/re-register", nil)
}

func (a *Accounts) IsRegistered(ctx context.Context, accountID string) Response[bool] {
	return get[bool](ctx, a.c, accountPath(accountID)+"/registered", nil)
}
