package executor

import "errors"

// ErrInvalidContext describes a RequestContext failing Valid(). Execute does
// not return it: it reports that case as an INVALID_CONTEXT Response with a
// nil error.
var ErrInvalidContext = errors.New("executor: request context is invalid")
