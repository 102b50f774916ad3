package domain

// CallStatus is the lifecycle state of a SIP call.
type CallStatus string

const (
	CallInitiating   CallStatus = "INITIATING"
	CallCalling      CallStatus = "CALLING"
	CallRinging      CallStatus = "RINGING"
	CallEarly        CallStatus = "EARLY"
	CallConnecting   CallStatus = "CONNECTING"
	CallConfirmed    CallStatus = "CONFIRMED"
	CallActive       CallStatus = "ACTIVE"
	CallHold         CallStatus = "HOLD"
	CallDisconnected CallStatus = "DISCONNECTED"
	CallFailed       CallStatus = "FAILED"
)

// Terminal reports whether no further transition can follow s.
func (s CallStatus) Terminal() bool {
	return s == CallDisconnected || s == CallFailed
}

// Call is an active SIP call. CallID is the merge key.
type Call struct {
	ID        int64      `json:"id"`
	CallID    int64      `json:"callId"`
	RemoteURI string     `json:"remoteUri"`
	Status    CallStatus `json:"status"`
	AccountID int64      `json:"accountId"`
	StartedAt Timestamp  `json:"startedAt"`
	EndedAt   *Timestamp `json:"endedAt,omitempty"`

	// WssURL is only set on make-call responses.
	WssURL string `json:"wssUrl,omitempty"`
}

// MakeCallRequest places an outbound call from an account.
type MakeCallRequest struct {
	AccountID   string `json:"accountId"`
	Destination string `json:"destination"`
}

// DTMFRequest sends digits on an established call.
type DTMFRequest struct {
	Digits string `json:"digits"`
}
