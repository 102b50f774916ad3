package api

import (
	"context"
	"strconv"

	"github.com/soyeahso/sipdash/internal/domain"
)

// Calls covers /sipcall.
type Calls struct{ c *Client }

// Calls returns the SIP call endpoints.
func (c *Client) Calls() *Calls { return &Calls{c: c} }

const callsPath = "/sipcall"

func callPath(callID int64) string {
	return callsPath + "/" + strconv.FormatInt(callID, 10)
}

// List returns the active calls.
func (s *Calls) List(ctx context.Context) Response[[]domain.Call] {
	return get[[]domain.Call](ctx, s.c, callsPath, nil)
}

func (s *Calls) Get(ctx context.Context, callID int64) Response[domain.Call] {
	return get[domain.Call](ctx, s.c, callPath(callID), nil)
}

// Make places a call. The returned call carries WssURL.
func (s *Calls) Make(ctx context.Context, req domain.MakeCallRequest) Response[domain.Call] {
	return post[domain.Call](ctx, s.c, callsPath, req)
}

func (s *Calls) Hangup(ctx context.Context, callID int64) Response[struct{}] {
	return s.action(ctx, callID, "hangup")
}

func (s *Calls) Hold(ctx context.Context, callID int64) Response[struct{}] {
	return s.action(ctx, callID, "hold")
}

func (s *Calls) Unhold(ctx context.Context, callID int64) Response[struct{}] {
	return s.action(ctx, callID, "unhold")
}

func (s *Calls) Mute(ctx context.Context, callID int64) Response[struct{}] {
	return s.action(ctx, callID, "mute")
}

func (s *Calls) Unmute(ctx context.Context, callID int64) Response[struct{}] {
	return s.action(ctx, callID, "unmute")
}

func (s *Calls) SendDTMF(ctx context.Context, callID int64, digits string) Response[struct{}] {
	return post[struct{}](ctx, s.c, callPath(callID)+"/dtmf", domain.DTMFRequest{Digits: digits})
}

func (s *Calls) Delete(ctx context.Context, callID int64) Response[struct{}] {
	return del[struct{}](ctx, s.c, callPath(callID))
}

func (s *Calls) Status(ctx context.Context, callID int64) Response[domain.Call] {
	return get[domain.Call](ctx, s.c, callPath(callID)+"/status", nil)
}

// Statistics returns the backend's free-form media statistics.
func (s *Calls) Statistics(ctx context.Context, callID int64) Response[map[string]any] {
	return get[map[string]any](ctx, s.c, callPath(callID)+"/statistics", nil)
}

func (s *Calls) action(ctx context.Context, callID int64, verb string) Response[struct{}] {
	return post[struct{}](ctx, s.c, callPath(callID)+"/"+verb, nil)
}
