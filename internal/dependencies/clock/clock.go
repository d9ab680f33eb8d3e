package clock

import "time"

// Resolution is the precision license timestamps are kept at. Both the
// postgres and redis stores persist milliseconds, so issuing at a finer
// resolution would make a freshly read record differ from the one written.
const Resolution = time.Millisecond

// Clock is the source of "now" for issuance, expiry checks and rate limiting.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// New returns the wall clock.
func New() *System {
	return &System{}
}

func (System) Now() time.Time {
	return time.Now().UTC().Truncate(Resolution)
}
