// Package source defines the contract every upstream daily data adapter
// satisfies and the shared HTTP plumbing they use.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/igorvidecnik/databox-integration/internal/record"
)

// ErrFetchFailed wraps network and decoding failures talking to a source API.
var ErrFetchFailed = errors.New("source fetch failed")

// DailySource produces exactly one record per day for the requested range.
// Empty bounds select the default trailing window in the source's time zone.
type DailySource interface {
	Name() string
	FetchDaily(ctx context.Context, from, to string) ([]record.Record, error)
}

// StatusError is returned for non-2xx upstream responses. Reason carries the
// upstream's error message when the body had one.
type StatusError struct {
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Reason)
}
