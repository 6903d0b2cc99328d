package droplink

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCreateRequest is returned by Create when the request is nil
	// or not one of the supported payload types. No HTTP request is made.
	ErrInvalidCreateRequest = errors.New("create request must be BookmarkParams, BookmarkBatch, or *UploadRequest")

	// ErrDetachedItem is returned by instance-level operations on an Item
	// that was built by hand rather than decoded from a service response.
	ErrDetachedItem = errors.New("item is not attached to a client")

	// ErrMissingHref is returned when an operation needs an item's canonical
	// resource URL and none is present.
	ErrMissingHref = errors.New("item has no href")
)

// RequestFailure is the fail-soft result for any non-2xx response. The status
// line and raw body are carried through untouched so callers can inspect what
// the service actually said; transport-level faults are reported as ordinary
// wrapped errors instead.
type RequestFailure struct {
	// StatusCode is the numeric HTTP status, e.g. 404.
	StatusCode int

	// Status is the full status line, e.g. "404 Not Found".
	Status string

	// Body is the verbatim response body. It is not assumed to be JSON.
	Body []byte
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("service returned %s: %s", e.Status, e.Body)
}

// AsRequestFailure unwraps err into a *RequestFailure if one is in the chain.
func AsRequestFailure(err error) (*RequestFailure, bool) {
	var failure *RequestFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
