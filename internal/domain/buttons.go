package domain

// ButtonState records, per message, which interactive actions have
// already been executed, so automation and UI stay idempotent across
// reloads. Entries survive process restarts via a StateStore.
type ButtonState struct {
	MessageID    uint64          `json:"message_id"`
	RunActions   map[string]bool `json:"run_actions"`
	NextAction   string          `json:"next_action,omitempty"`
	OnDeckAction string          `json:"on_deck_action,omitempty"`
}

// NewButtonState creates an empty state for a message.
func NewButtonState(messageID uint64) ButtonState {
	return ButtonState{MessageID: messageID, RunActions: make(map[string]bool)}
}

// StateStore is the narrow key-value contract the core uses for
// persisted state (button state, policy snapshots). The collaborator
// owns durability; the core only needs get/set/has/delete semantics.
type StateStore interface {
	Get(key string, out any) (bool, error)
	Set(key string, value any) error
	Has(key string) (bool, error)
	Delete(key string) error
	// Keys returns every stored key with the given prefix.
	Keys(prefix string) ([]string, error)
}
