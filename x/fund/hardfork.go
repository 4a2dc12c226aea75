package fund

import (
	"time"

	weave "github.com/iov-one/weave"
)

// Chain activation times of the deposit autorenewal behavior. Replaying
// historical blocks requires reproducing whichever branch was live at the
// block time, so both code paths below stay in place forever and these
// constants must never move.
const (
	// Since this time overdue deposits of accounts that opted in are
	// extended for another period instead of being paid out.
	autorenewalSince weave.UnixTime = 1559347200 // 2019-06-01 00:00:00 UTC

	// After this time the extension is submitted as a renewal operation.
	// Before it, the deposit is modified in place.
	renewalOperationSince weave.UnixTime = 1564617600 // 2019-08-01 00:00:00 UTC
)

func autorenewalActive(now time.Time) bool {
	return weave.AsUnixTime(now) >= autorenewalSince
}

func renewalByOperation(now time.Time) bool {
	return weave.AsUnixTime(now) > renewalOperationSince
}
