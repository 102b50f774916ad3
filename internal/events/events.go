// Package events defines the push events delivered over the hubs and the
// dispatcher that fans them out to registered handlers.
package events

import "github.com/soyeahso/sipdash/internal/domain"

// Kind names an event. Wire events use the same names.
type Kind string

const (
	KindAccountUpdate     Kind = "AccountUpdate"
	KindAccountListUpdate Kind = "AccountListUpdate"
	KindCallUpdate        Kind = "CallUpdate"
	KindCallListUpdate    Kind = "CallListUpdate"
	KindMessageReceived   Kind = "MessageReceived"
	KindNewMessage        Kind = "NewMessage"
	KindVoiceActivity     Kind = "VoiceActivity"
	KindMediaStateChange  Kind = "MediaStateChange"

	// Connectivity signals raised by the hub itself.
	KindConnected    Kind = "Connected"
	KindDisconnected Kind = "Disconnected"
	KindReconnected  Kind = "Reconnected"
)

// WireKinds lists the events a server may push.
var WireKinds = []Kind{
	KindAccountUpdate,
	KindAccountListUpdate,
	KindCallUpdate,
	KindCallListUpdate,
	KindMessageReceived,
	KindNewMessage,
	KindVoiceActivity,
	KindMediaStateChange,
}

// Event is implemented by every event payload.
type Event interface {
	Kind() Kind
}

// AccountUpdate carries a full account snapshot.
type AccountUpdate struct {
	Account domain.Account
}

// AccountListUpdate carries the same shape as AccountUpdate; the server
// sends it while a list is being refreshed.
type AccountListUpdate struct {
	Account domain.Account
}

// CallUpdate carries a full call snapshot.
type CallUpdate struct {
	Call domain.Call
}

// CallListUpdate is the list-refresh variant of CallUpdate.
type CallListUpdate struct {
	Call domain.Call
}

// MessageReceived carries a message whose ChatID names its chat.
type MessageReceived struct {
	Message domain.Message
}

// NewMessage carries a message and the chat it belongs to.
type NewMessage struct {
	Message domain.Message
	ChatID  int64
}

// VoiceActivity reports whether the remote party on a call is speaking.
type VoiceActivity struct {
	CallID int64
	Active bool
}

// MediaStateChange reports the media state of a call.
type MediaStateChange struct {
	CallID int64
	State  string
}

// Connected is raised whenever the hub's connection is established.
type Connected struct{}

// Disconnected is raised when the connection drops or is closed. Err is
// nil for an explicit disconnect.
type Disconnected struct {
	Err error
}

// Reconnected is raised after automatic reconnection succeeds.
type Reconnected struct{}

func (AccountUpdate) Kind() Kind     { return KindAccountUpdate }
func (AccountListUpdate) Kind() Kind { return KindAccountListUpdate }
func (CallUpdate) Kind() Kind        { return KindCallUpdate }
func (CallListUpdate) Kind() Kind    { return KindCallListUpdate }
func (MessageReceived) Kind() Kind   { return KindMessageReceived }
func (NewMessage) Kind() Kind        { return KindNewMessage }
func (VoiceActivity) Kind() Kind     { return KindVoiceActivity }
func (MediaStateChange) Kind() Kind  { return KindMediaStateChange }
func (Connected) Kind() Kind         { return KindConnected }
func (Disconnected) Kind() Kind      { return KindDisconnected }
func (Reconnected) Kind() Kind       { return KindReconnected }
