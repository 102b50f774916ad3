package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_PositionalParams(t *testing.T) {
	f, err := NewRequest("id-1", "JoinGroup", []any{"chat_5"})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, f.Type)
	assert.Equal(t, "JoinGroup", f.Method)
	assert.JSONEq(t, `["chat_5"]`, string(f.Params))
}

func TestNewResponse(t *testing.T) {
	f, err := NewResponse("id-1", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.True(t, f.Succeeded())
	assert.JSONEq(t, `{"n":1}`, string(f.Payload))
}

func TestNewErrorResponse(t *testing.T) {
	f := NewErrorResponse("id-1", ErrorShape{Code: "forbidden", Message: "nope"})
	assert.False(t, f.Succeeded())
	require.NotNil(t, f.Error)
	assert.Equal(t, "forbidden", f.Error.Code)
}

func TestNewEvent_Args(t *testing.T) {
	f, err := NewEvent("VoiceActivity", 3, 12, true)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, int64(3), f.Seq)
	assert.JSONEq(t, `[12,true]`, string(f.Payload))

	f, err = NewEvent("Ping", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(f.Payload))
}

func TestFrameRoundTrip(t *testing.T) {
	ok := true
	in := Frame{Type: FrameTypeResponse, ID: "x", OK: &ok, Payload: json.RawMessage(`null`)}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Frame
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Succeeded())
	assert.Equal(t, "x", out.ID)
}

func TestSucceeded_NilOK(t *testing.T) {
	assert.False(t, Frame{}.Succeeded())
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:5000/api", "/hubs/sip", "ws://localhost:5000/hubs/sip"},
		{"https://pbx.example.com/api?x=1", "/hubs/chat", "wss://pbx.example.com/hubs/chat"},
		{"ws://10.0.0.1:8080", "/hubs/sip", "ws://10.0.0.1:8080/hubs/sip"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := Endpoint(tt.base, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Endpoint("ftp://host", "/hubs/sip")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestErrors(t *testing.T) {
	ce := &ConnectionError{URL: "ws://x", Err: ErrNotConnected}
	assert.ErrorIs(t, ce, ErrNotConnected)
	assert.Contains(t, ce.Error(), "ws://x")

	ie := &InvokeError{Method: "JoinGroup", Code: "forbidden", Message: "no access"}
	assert.Equal(t, "hub: JoinGroup: no access (forbidden)", ie.Error())
	ie.Code = ""
	assert.Equal(t, "hub: JoinGroup: no access", ie.Error())
}
