package passport

import "github.com/kilupskalvis/dpp/internal/models"

// Call carries the host-supplied context of one registry call: the
// authenticated caller and the monotonic counter used as the timestamp of
// anything the call writes.
type Call struct {
	Caller  models.Address
	Counter uint64
}
