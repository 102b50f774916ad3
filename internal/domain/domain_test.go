package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- CallStatus tests ---

func TestCallStatusTerminal(t *testing.T) {
	tests := []struct {
		status CallStatus
		want   bool
	}{
		{CallInitiating, false},
		{CallCalling, false},
		{CallRinging, false},
		{CallConfirmed, false},
		{CallActive, false},
		{CallHold, false},
		{CallDisconnected, true},
		{CallFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

// --- Timestamp tests ---

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2025-03-01T10:20:30Z"`, time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"no zone", `"2025-03-01T10:20:30.5"`, time.Date(2025, 3, 1, 10, 20, 30, 500000000, time.UTC)},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}
}

func TestTimestampUnmarshal_Invalid(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`42`), &ts))
}

func TestTimestampMarshal(t *testing.T) {
	data, err := json.Marshal(NewTimestamp(time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-01T10:20:30Z"`, string(data))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

// --- Entity decoding ---

func TestAccountDecode(t *testing.T) {
	raw := `{
		"id": 7,
		"accountId": "acc-7",
		"username": "alice",
		"domain": "pbx.local",
		"registrarUri": "sip:pbx.local",
		"createdAt": "2025-01-01T00:00:00",
		"isActive": true,
		"agentConfigId": null,
		"calls": [{"id": 1, "callId": 99, "status": "ACTIVE", "accountId": 7}],
		"callCount": 1
	}`
	var a Account
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Equal(t, "acc-7", a.AccountID)
	assert.Nil(t, a.AgentConfigID)
	require.Len(t, a.Calls, 1)
	assert.Equal(t, int64(99), a.Calls[0].CallID)
	assert.Equal(t, CallActive, a.Calls[0].Status)
}

func TestAccountClone(t *testing.T) {
	agent := int64(3)
	a := Account{AccountID: "a", AgentConfigID: &agent, Calls: []Call{{CallID: 1}}}
	c := a.Clone()
	c.Calls[0].CallID = 2
	*c.AgentConfigID = 9
	assert.Equal(t, int64(1), a.Calls[0].CallID)
	assert.Equal(t, int64(3), *a.AgentConfigID)
}

func TestChatWithMessage(t *testing.T) {
	chat := Chat{ID: 1, Messages: []Message{{ID: 1}}, MessageCount: 1}
	next := chat.WithMessage(Message{ID: 2, ChatID: 1})

	assert.Len(t, chat.Messages, 1, "original untouched")
	assert.Equal(t, 1, chat.MessageCount)
	require.Len(t, next.Messages, 2)
	assert.Equal(t, int64(2), next.Messages[1].ID)
	assert.Equal(t, 2, next.MessageCount)
}

func TestMessageMetricsOptional(t *testing.T) {
	raw := `{"id": 1, "chatId": 2, "sender": "agent", "content": "hi", "isUserMessage": false,
		"timestamp": "2025-01-01T00:00:00Z",
		"metrics": {"thinkTimeMs": 120, "thinkSuccess": true, "lastUpdated": "2025-01-01T00:00:01Z", "totalProcessingTimeMs": 300}}`
	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.NotNil(t, m.Metrics)
	assert.Nil(t, m.Metrics.ListenTimeMs)
	require.NotNil(t, m.Metrics.ThinkTimeMs)
	assert.Equal(t, int64(120), *m.Metrics.ThinkTimeMs)
	assert.True(t, *m.Metrics.ThinkSuccess)
	assert.Equal(t, int64(300), m.Metrics.TotalProcessingTimeMs)
}

// --- LLMParameters tests ---

func TestLLMParametersDefaults(t *testing.T) {
	var p LLMParameters
	assert.Equal(t, 0.8, p.GetTemperature())
	assert.Equal(t, 0.9, p.GetTopP())
	assert.Equal(t, 20, p.GetTopK())
	assert.Equal(t, 0.0, p.GetMinP())
	assert.Equal(t, 1.2, p.GetRepeatPenalty())
	assert.Equal(t, 1.5, p.GetPresencePenalty())
	assert.Equal(t, 1.0, p.GetFrequencyPenalty())
	assert.Equal(t, 42, p.GetSeed())
	assert.Equal(t, 100, p.GetNumPredict())
	assert.Equal(t, 5, p.GetNumKeep())
	assert.Equal(t, "", p.GetSystemPrompt())
}

func TestLLMParametersDecode_StringsAndNumbers(t *testing.T) {
	raw := `{"temperature": "0.3", "top_k": 40, "seed": "7", "systemPrompt": "be brief", "mirostat": "2"}`
	var p LLMParameters
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, 0.3, p.GetTemperature())
	assert.Equal(t, 40, p.GetTopK())
	assert.Equal(t, 7, p.GetSeed())
	assert.Equal(t, "be brief", p.GetSystemPrompt())
	assert.Equal(t, 0.9, p.GetTopP(), "unset falls back to default")
	assert.Equal(t, "2", p.Extra["mirostat"])
}

func TestLLMParametersDecode_Invalid(t *testing.T) {
	var p LLMParameters
	assert.Error(t, json.Unmarshal([]byte(`{"top_k": "many"}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"temperature": [1]}`), &p))
}

func TestLLMParametersEncode(t *testing.T) {
	var p LLMParameters
	require.NoError(t, p.Set("temperature", "0.5"))
	require.NoError(t, p.Set("num_predict", "256"))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var wire map[string]string
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, map[string]string{"temperature": "0.5", "num_predict": "256"}, wire)
}

func TestLLMParametersSet_Invalid(t *testing.T) {
	var p LLMParameters
	err := p.Set("top_k", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
}

func TestLLMParametersDecode_EmptyValueUsesDefault(t *testing.T) {
	raw := `{"id": 1, "name": "a", "llm": {"parameters": {"temperature": "", "top_k": "", "seed": " "}}}`
	var a AgentConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	p := a.LLM.Parameters
	assert.Nil(t, p.Temperature)
	assert.Equal(t, DefaultTemperature, p.GetTemperature())
	assert.Equal(t, DefaultTopK, p.GetTopK())
	assert.Equal(t, DefaultSeed, p.GetSeed())
}

func TestLLMParametersSet_EmptyClears(t *testing.T) {
	var p LLMParameters
	require.NoError(t, p.Set("top_p", "0.5"))
	require.NoError(t, p.Set("top_p", ""))
	assert.Nil(t, p.TopP)
	assert.NotContains(t, p.Map(), "top_p")
}

func TestAgentConfigClone(t *testing.T) {
	var a AgentConfig
	require.NoError(t, a.LLM.Parameters.Set("temperature", "0.3"))
	require.NoError(t, a.LLM.Parameters.Set("mirostat", "2"))
	a.UpdatedAt = &Timestamp{Time: time.Unix(100, 0)}

	c := a.Clone()
	*c.LLM.Parameters.Temperature = 0.9
	c.LLM.Parameters.Extra["mirostat"] = "0"
	c.UpdatedAt.Time = time.Unix(200, 0)

	assert.Equal(t, 0.3, a.LLM.Parameters.GetTemperature())
	assert.Equal(t, "2", a.LLM.Parameters.Extra["mirostat"])
	assert.Equal(t, int64(100), a.UpdatedAt.Unix())
}

func TestLLMParametersSet_IntegralFloat(t *testing.T) {
	var p LLMParameters
	require.NoError(t, p.Set("top_k", "20.0"))
	assert.Equal(t, 20, p.GetTopK())
	assert.Error(t, p.Set("top_k", "20.5"))
}

func TestAgentConfigDecode(t *testing.T) {
	raw := `{
		"id": 5, "name": "receptionist",
		"llm": {"model": "llama3", "ollamaEndpoint": "http://ollama:11434", "parameters": {"temperature": "0.2"}},
		"whisper": {"endpoint": "http://whisper", "language": "en"},
		"auralis": {"endpoint": "http://tts"},
		"createdAt": "2025-01-01T00:00:00Z", "updatedAt": null,
		"priority": 2, "isEnabled": true, "chatCount": 4
	}`
	var a AgentConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Equal(t, int64(5), a.ID)
	assert.Equal(t, "llama3", a.LLM.Model)
	assert.Equal(t, 0.2, a.LLM.Parameters.GetTemperature())
	assert.Equal(t, "en", a.Whisper.Language)
	assert.Nil(t, a.UpdatedAt)
	assert.Equal(t, 2, a.Priority)
}
