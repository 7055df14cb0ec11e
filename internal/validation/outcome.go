package validation

// Outcome is the result of a best-effort call. A non-nil Warning means the call
// failed and Value is the zero value; the request carries on either way.
type Outcome[T any] struct {
	Value   T
	Warning error
}

// Ok wraps a successful value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Warn wraps a swallowed failure.
func Warn[T any](err error) Outcome[T] {
	return Outcome[T]{Warning: err}
}

// IsOk reports whether the call succeeded.
func (o Outcome[T]) IsOk() bool {
	return o.Warning == nil
}
