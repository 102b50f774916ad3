package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soyeahso/sipdash/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "admin"}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("abc")
	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, s.Clear(ctx))
	tok, _ = s.Token(ctx)
	assert.Empty(t, tok)
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	kv := persist.NewMemoryKV()
	s := NewKVStore(kv)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok, "missing key means anonymous")

	require.NoError(t, s.SetToken(ctx, "xyz"))
	raw, err := kv.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(raw))

	require.NoError(t, s.SetToken(ctx, ""))
	_, err = kv.Get(ctx, TokenKey)
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := Expiry(signed(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = Expiry(signed(t, time.Time{}))
	assert.False(t, ok, "no exp claim")

	_, ok = Expiry("opaque-api-key")
	assert.False(t, ok)
}

func TestTokenSource(t *testing.T) {
	store := NewMemoryStore("")
	ts := NewTokenSource(store)

	_, err := ts.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	store.SetToken(context.Background(), "opaque")
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Expiry.IsZero())

	valid := signed(t, time.Now().Add(time.Hour))
	store.SetToken(context.Background(), valid)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.False(t, tok.Expiry.IsZero())

	store.SetToken(context.Background(), signed(t, time.Now().Add(-time.Minute)))
	_, err = ts.Token()
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestHubToken(t *testing.T) {
	store := NewMemoryStore("")
	ts := NewTokenSource(store)

	tok, err := ts.HubToken()
	require.NoError(t, err)
	assert.Empty(t, tok)

	store.SetToken(context.Background(), "abc")
	tok, err = ts.HubToken()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	store.SetToken(context.Background(), signed(t, time.Now().Add(-time.Minute)))
	_, err = ts.HubToken()
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTransport(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	store := NewMemoryStore("")
	client := &http.Client{Transport: &Transport{Source: NewTokenSource(store)}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	store.SetToken(context.Background(), "abc")
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, req.Header.Get("Authorization"), "caller's request is not mutated")

	assert.Equal(t, []string{"", "Bearer abc"}, got)
}

func TestTransport_Expired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	store := NewMemoryStore(signed(t, time.Now().Add(-time.Minute)))
	client := &http.Client{Transport: &Transport{Source: NewTokenSource(store)}}
	_, err := client.Get(srv.URL)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
