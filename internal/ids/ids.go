package ids

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID returns a lexicographically sortable identifier for one request.
func RequestID() string {
	return ulid.Make().String()
}

// Valid reports whether s is a well-formed request id.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time returns the moment encoded in a request id.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
