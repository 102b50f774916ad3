package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by Decode for event names it does not model.
var ErrUnknownEvent = errors.New("unknown event")

// Decode converts a wire event into its typed payload. The payload is the
// JSON array of positional arguments; a bare object is accepted as a single
// argument.
func Decode(name string, payload json.RawMessage) (Event, error) {
	args, err := splitArgs(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	switch Kind(name) {
	case KindAccountUpdate:
		var e AccountUpdate
		err := decodeArgs(name, args, &e.Account)
		return result(e, err)
	case KindAccountListUpdate:
		var e AccountListUpdate
		err := decodeArgs(name, args, &e.Account)
		return result(e, err)
	case KindCallUpdate:
		var e CallUpdate
		err := decodeArgs(name, args, &e.Call)
		return result(e, err)
	case KindCallListUpdate:
		var e CallListUpdate
		err := decodeArgs(name, args, &e.Call)
		return result(e, err)
	case KindMessageReceived:
		var e MessageReceived
		err := decodeArgs(name, args, &e.Message)
		return result(e, err)
	case KindNewMessage:
		var e NewMessage
		err := decodeArgs(name, args, &e.Message, &e.ChatID)
		return result(e, err)
	case KindVoiceActivity:
		var e VoiceActivity
		err := decodeArgs(name, args, &e.CallID, &e.Active)
		return result(e, err)
	case KindMediaStateChange:
		var e MediaStateChange
		err := decodeArgs(name, args, &e.CallID, &e.State)
		return result(e, err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
}

func result(e Event, err error) (Event, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

func splitArgs(payload json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func decodeArgs(name string, args []json.RawMessage, targets ...any) error {
	if len(args) < len(targets) {
		return fmt.Errorf("decode %s: want %d arguments, got %d", name, len(targets), len(args))
	}
	for i, target := range targets {
		if err := json.Unmarshal(args[i], target); err != nil {
			return fmt.Errorf("decode %s: argument %d: %w", name, i, err)
		}
	}
	return nil
}
