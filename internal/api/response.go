package api

// Response is the outcome of one REST call. Exactly one of Data (with
// Success set) or Error is meaningful. Err holds the typed error behind
// Error.
type Response[T any] struct {
	Data      T
	Success   bool
	Error     string
	ErrorCode string
	Status    int
	Err       error
}

// Message returns Error, or fallback when the failure carried no message.
func (r Response[T]) Message(fallback string) string {
	if r.Error != "" {
		return r.Error
	}
	return fallback
}

func failure[T any](err error, status int) Response[T] {
	return Response[T]{
		Error:     err.Error(),
		ErrorCode: errorCode(err),
		Status:    status,
		Err:       err,
	}
}
