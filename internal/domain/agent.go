package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// AgentConfig is an LLM-backed conversational agent.
type AgentConfig struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	LLM       LLMConfig     `json:"llm"`
	Whisper   WhisperConfig `json:"whisper"`
	Auralis   AuralisConfig `json:"auralis"`
	CreatedAt Timestamp     `json:"createdAt"`
	UpdatedAt *Timestamp    `json:"updatedAt"`
	Priority  int           `json:"priority"`
	IsEnabled bool          `json:"isEnabled"`
	ChatCount int           `json:"chatCount"`
}

// Clone returns a deep copy of a.
func (a AgentConfig) Clone() AgentConfig {
	out := a
	out.LLM.Parameters = a.LLM.Parameters.Clone()
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// LLMConfig selects the model and generation parameters.
type LLMConfig struct {
	Model          string        `json:"model"`
	OllamaEndpoint string        `json:"ollamaEndpoint"`
	Parameters     LLMParameters `json:"parameters"`
}

// WhisperConfig configures speech-to-text.
type WhisperConfig struct {
	Endpoint string `json:"endpoint"`
	Language string `json:"language"`
}

// AuralisConfig configures speech synthesis.
type AuralisConfig struct {
	Endpoint string `json:"endpoint"`
}

// CreateAgentRequest creates an agent.
type CreateAgentRequest struct {
	Name      string        `json:"name"`
	LLM       LLMConfig     `json:"llm"`
	Whisper   WhisperConfig `json:"whisper"`
	Auralis   AuralisConfig `json:"auralis"`
	Priority  int           `json:"priority"`
	IsEnabled bool          `json:"isEnabled"`
}

// UpdateAgentRequest updates an agent. Nil sections are left unchanged.
type UpdateAgentRequest struct {
	Name      string         `json:"name"`
	LLM       *LLMConfig     `json:"llm,omitempty"`
	Whisper   *WhisperConfig `json:"whisper,omitempty"`
	Auralis   *AuralisConfig `json:"auralis,omitempty"`
	Priority  *int           `json:"priority,omitempty"`
	IsEnabled *bool          `json:"isEnabled,omitempty"`
}

// Generation parameter defaults applied when a field is unset.
const (
	DefaultTemperature      = 0.8
	DefaultTopP             = 0.9
	DefaultTopK             = 20
	DefaultMinP             = 0.0
	DefaultRepeatPenalty    = 1.2
	DefaultPresencePenalty  = 1.5
	DefaultFrequencyPenalty = 1.0
	DefaultSeed             = 42
	DefaultNumPredict       = 100
	DefaultNumKeep          = 5
)

// LLMParameters are the model's generation parameters. Every field is
// optional; the accessor methods return the documented default for unset
// fields. On the wire the backend stores them as a string-valued object.
type LLMParameters struct {
	Temperature      *float64
	TopP             *float64
	TopK             *int
	MinP             *float64
	RepeatPenalty    *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Seed             *int
	NumPredict       *int
	NumKeep          *int
	SystemPrompt     *string

	// Extra holds keys this client does not model, so they survive a
	// read-modify-write cycle.
	Extra map[string]string
}

// Clone returns a copy sharing no pointers or map with p.
func (p LLMParameters) Clone() LLMParameters {
	out := LLMParameters{
		Temperature:      clonePtr(p.Temperature),
		TopP:             clonePtr(p.TopP),
		TopK:             clonePtr(p.TopK),
		MinP:             clonePtr(p.MinP),
		RepeatPenalty:    clonePtr(p.RepeatPenalty),
		PresencePenalty:  clonePtr(p.PresencePenalty),
		FrequencyPenalty: clonePtr(p.FrequencyPenalty),
		Seed:             clonePtr(p.Seed),
		NumPredict:       clonePtr(p.NumPredict),
		NumKeep:          clonePtr(p.NumKeep),
		SystemPrompt:     clonePtr(p.SystemPrompt),
	}
	if p.Extra != nil {
		out.Extra = maps.Clone(p.Extra)
	}
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Wire keys.
const (
	paramTemperature      = "temperature"
	paramTopP             = "top_p"
	paramTopK             = "top_k"
	paramMinP             = "min_p"
	paramRepeatPenalty    = "repeat_penalty"
	paramPresencePenalty  = "presence_penalty"
	paramFrequencyPenalty = "frequency_penalty"
	paramSeed             = "seed"
	paramNumPredict       = "num_predict"
	paramNumKeep          = "num_keep"
	paramSystemPrompt     = "systemPrompt"
)

func (p LLMParameters) GetTemperature() float64 { return floatOr(p.Temperature, DefaultTemperature) }
func (p LLMParameters) GetTopP() float64        { return floatOr(p.TopP, DefaultTopP) }
func (p LLMParameters) GetTopK() int            { return intOr(p.TopK, DefaultTopK) }
func (p LLMParameters) GetMinP() float64        { return floatOr(p.MinP, DefaultMinP) }
func (p LLMParameters) GetRepeatPenalty() float64 {
	return floatOr(p.RepeatPenalty, DefaultRepeatPenalty)
}
func (p LLMParameters) GetPresencePenalty() float64 {
	return floatOr(p.PresencePenalty, DefaultPresencePenalty)
}
func (p LLMParameters) GetFrequencyPenalty() float64 {
	return floatOr(p.FrequencyPenalty, DefaultFrequencyPenalty)
}
func (p LLMParameters) GetSeed() int       { return intOr(p.Seed, DefaultSeed) }
func (p LLMParameters) GetNumPredict() int { return intOr(p.NumPredict, DefaultNumPredict) }
func (p LLMParameters) GetNumKeep() int    { return intOr(p.NumKeep, DefaultNumKeep) }
func (p LLMParameters) GetSystemPrompt() string {
	if p.SystemPrompt == nil {
		return ""
	}
	return *p.SystemPrompt
}

// Set assigns a parameter from its wire key and string value. An empty
// value leaves a numeric parameter unset so its default applies.
func (p *LLMParameters) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case paramTemperature:
		p.Temperature, err = parseFloatPtr(value)
	case paramTopP:
		p.TopP, err = parseFloatPtr(value)
	case paramTopK:
		p.TopK, err = parseIntPtr(value)
	case paramMinP:
		p.MinP, err = parseFloatPtr(value)
	case paramRepeatPenalty:
		p.RepeatPenalty, err = parseFloatPtr(value)
	case paramPresencePenalty:
		p.PresencePenalty, err = parseFloatPtr(value)
	case paramFrequencyPenalty:
		p.FrequencyPenalty, err = parseFloatPtr(value)
	case paramSeed:
		p.Seed, err = parseIntPtr(value)
	case paramNumPredict:
		p.NumPredict, err = parseIntPtr(value)
	case paramNumKeep:
		p.NumKeep, err = parseIntPtr(value)
	case paramSystemPrompt:
		p.SystemPrompt = &value
	default:
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[key] = value
	}
	if err != nil {
		return fmt.Errorf("parameter %s: %w", key, err)
	}
	return nil
}

// Map returns the set parameters in wire form.
func (p LLMParameters) Map() map[string]string {
	out := make(map[string]string, len(p.Extra)+11)
	maps.Copy(out, p.Extra)
	putFloat(out, paramTemperature, p.Temperature)
	putFloat(out, paramTopP, p.TopP)
	putInt(out, paramTopK, p.TopK)
	putFloat(out, paramMinP, p.MinP)
	putFloat(out, paramRepeatPenalty, p.RepeatPenalty)
	putFloat(out, paramPresencePenalty, p.PresencePenalty)
	putFloat(out, paramFrequencyPenalty, p.FrequencyPenalty)
	putInt(out, paramSeed, p.Seed)
	putInt(out, paramNumPredict, p.NumPredict)
	putInt(out, paramNumKeep, p.NumKeep)
	if p.SystemPrompt != nil {
		out[paramSystemPrompt] = *p.SystemPrompt
	}
	return out
}

// MarshalJSON writes the string-valued wire object.
func (p LLMParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON reads the wire object. Values may be JSON strings or
// numbers; null resets to all defaults.
func (p *LLMParameters) UnmarshalJSON(data []byte) error {
	*p = LLMParameters{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("llm parameters: %w", err)
	}
	for key, val := range raw {
		s, err := scalarString(val)
		if err != nil {
			return fmt.Errorf("llm parameters: %s: %w", key, err)
		}
		if err := p.Set(key, s); err != nil {
			return fmt.Errorf("llm parameters: %w", err)
		}
	}
	return nil
}

func scalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("expected string or number, got %s", string(raw))
}

func parseFloatPtr(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseIntPtr(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Accept "20.0" style values.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return nil, err
		}
		v = int(f)
	}
	return &v, nil
}

func putFloat(m map[string]string, key string, v *float64) {
	if v != nil {
		m[key] = strconv.FormatFloat(*v, 'f', -1, 64)
	}
}

func putInt(m map[string]string, key string, v *int) {
	if v != nil {
		m[key] = strconv.Itoa(*v)
	}
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
