package calls

import (
	"fmt"
	"sync"
	"sync/atomic"

	"conduit-ai/internal/domain"
)

// idCounts is the static per-function table of how many message ids a
// call needs before execution. An edit renders a diff message plus a
// status message; a console or terminal run renders the command echo,
// its output, and a status line; anything unlisted gets a single note
// message.
var idCounts = map[string]int{
	"edit_file":    2,
	"run_console":  3,
	"run_terminal": 3,
	"run_file":     2,
	"create_file":  2,
	"delete_file":  1,
	"add_note":     1,
}

const defaultIDCount = 1

// IDCount returns the number of message ids reserved for a function name.
func IDCount(name string) int {
	if n, ok := idCounts[name]; ok {
		return n
	}
	return defaultIDCount
}

// globalIDCounter is the single source of message ids. Reservations for
// unrelated calls draw disjoint ranges from it, process-wide.
var globalIDCounter atomic.Uint64

// Reservations associates pre-allocated message ids with call ids for
// one request session. The table is an arena: created with the session,
// destroyed with it, so reservations never leak across requests.
type Reservations struct {
	mu     sync.RWMutex
	byCall map[string]domain.MessageIDReservation
}

// NewReservations creates an empty reservation table.
func NewReservations() *Reservations {
	return &Reservations{byCall: make(map[string]domain.MessageIDReservation)}
}

// Reserve allocates IDCount(name) sequential message ids for callID,
// before the call is handed to its handler. Reserving an already
// reserved call id is a contract violation.
func (r *Reservations) Reserve(callID, name string) (domain.MessageIDReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byCall[callID]; ok {
		return domain.MessageIDReservation{}, domain.NewDomainError("Reservations.Reserve", domain.ErrCallIDReused, callID)
	}

	count := IDCount(name)
	ids := make([]uint64, count)
	for i := range ids {
		ids[i] = globalIDCounter.Add(1)
	}

	res := domain.MessageIDReservation{CallID: callID, FunctionName: name, IDs: ids}
	r.byCall[callID] = res
	return res, nil
}

// ID returns the reserved message id at index for callID. Lookups are
// O(1) and fail loudly: a missing reservation or out-of-range index
// signals a programming error, never returns a fabricated id.
func (r *Reservations) ID(callID string, index int) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.byCall[callID]
	if !ok {
		return 0, domain.NewDomainError("Reservations.ID", domain.ErrReservationMissing, callID)
	}
	if index < 0 || index >= len(res.IDs) {
		return 0, domain.NewDomainError("Reservations.ID", domain.ErrReservationRange,
			fmt.Sprintf("call %s index %d of %d", callID, index, len(res.IDs)))
	}
	return res.IDs[index], nil
}

// Lookup returns the full reservation for a call id.
func (r *Reservations) Lookup(callID string) (domain.MessageIDReservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byCall[callID]
	if !ok {
		return domain.MessageIDReservation{}, domain.NewDomainError("Reservations.Lookup", domain.ErrReservationMissing, callID)
	}
	return res, nil
}
