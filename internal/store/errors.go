package store

import (
	"errors"
	"fmt"
)

// ValidationError reports a Store call missing required fields. It is always
// surfaced synchronously and never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store: invalid field %q: %s", e.Field, e.Reason)
}

// ErrNotAMap marks header text that decodes as valid JSON but not as an
// object. It is distinct from a plain JSON syntax failure.
var ErrNotAMap = errors.New("decoded value is not a map")

// DecodingError reports stored text that could not be restored to its
// original form: malformed JSON headers, a non-map header payload, or a
// payload the codec could not decompress. Callers decide whether to treat
// the row as unusable.
type DecodingError struct {
	Field string
	Cause error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("store: decoding %s: %v", e.Field, e.Cause)
}

func (e *DecodingError) Unwrap() error {
	return e.Cause
}
