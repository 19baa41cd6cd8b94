package enrich

import "errors"

// errUnknown stands in for a failure reported without a cause.
var errUnknown = errors.New("unknown failure")

// Outcome is the settled result of one dependent fetch.
type Outcome[T any] struct {
	Value   T
	Err     error
	skipped bool
}

// Success wraps a successful fetch result.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Failure wraps a failed fetch. A nil err is recorded as an unknown failure.
func Failure[T any](err error) Outcome[T] {
	if err == nil {
		err = errUnknown
	}
	return Outcome[T]{Err: err}
}

// Skipped is the outcome of a fetch that was deliberately not issued.
func Skipped[T any]() Outcome[T] {
	return Outcome[T]{skipped: true}
}

// Settle converts a (value, error) pair into an Outcome.
func Settle[T any](v T, err error) Outcome[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

// OK reports whether the fetch was issued and succeeded.
func (o Outcome[T]) OK() bool {
	return !o.skipped && o.Err == nil
}

// IsSkipped reports whether the fetch was never issued.
func (o Outcome[T]) IsSkipped() bool {
	return o.skipped
}
