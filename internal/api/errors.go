package api

import "fmt"

// Error codes reported for failures that carry no server code.
const (
	CodeNetworkError = "NETWORK_ERROR"
	CodeClientError  = "CLIENT_ERROR"
)

// NetworkError means the request was sent but no response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "No response received from server" }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response.
type ServerError struct {
	Status  int
	Message string
	Code    string
}

func (e *ServerError) Error() string { return e.Message }

// AuthError is a 401 response or a token that expired before sending.
// The token store has already been cleared when it is returned.
type AuthError struct {
	Status  int
	Message string
	Code    string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

// ClientError is a failure building the request or reading its result.
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string { return e.Err.Error() }
func (e *ClientError) Unwrap() error { return e.Err }

// errorCode maps an error to the code exposed on Response.
func errorCode(err error) string {
	switch e := err.(type) {
	case *NetworkError:
		return CodeNetworkError
	case *ClientError:
		return CodeClientError
	case *ServerError:
		return e.Code
	case *AuthError:
		return e.Code
	default:
		return ""
	}
}

// serverMessage picks the most specific message a backend error body
// offers: message, then title, then error.
func serverMessage(body map[string]any, status int) string {
	for _, key := range []string{"message", "title", "error"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("Server error: %d", status)
}
