package buttons

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"conduit-ai/internal/domain"
)

const keyPrefix = "buttons/"

// Tracker records which interactive actions have already run for each
// message, backed by a StateStore so the record survives restarts.
// Writes are serialized per tracker; reads of different messages are
// safe to interleave.
type Tracker struct {
	mu    sync.Mutex
	store domain.StateStore
}

// NewTracker creates a tracker over a state store.
func NewTracker(store domain.StateStore) *Tracker {
	return &Tracker{store: store}
}

func key(messageID uint64) string {
	return keyPrefix + strconv.FormatUint(messageID, 10)
}

// MarkActionRun records that the action has executed for the message.
// Marking an already-run action is a no-op, not an error.
func (t *Tracker) MarkActionRun(messageID uint64, kind domain.ActionKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.load(messageID)
	if err != nil {
		return err
	}
	if state.RunActions[kind.String()] {
		return nil
	}
	state.RunActions[kind.String()] = true
	if state.NextAction == kind.String() {
		// Running the queued action promotes the staged one.
		state.NextAction = state.OnDeckAction
		state.OnDeckAction = ""
	}
	if err := t.store.Set(key(messageID), state); err != nil {
		return domain.WrapOp("Tracker.MarkActionRun", err)
	}
	return nil
}

// SetPending records the action queued to run next for the message and
// the one staged behind it. Empty strings clear the slots.
func (t *Tracker) SetPending(messageID uint64, next, onDeck string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.load(messageID)
	if err != nil {
		return err
	}
	state.NextAction = next
	state.OnDeckAction = onDeck
	if err := t.store.Set(key(messageID), state); err != nil {
		return domain.WrapOp("Tracker.SetPending", err)
	}
	return nil
}

// Pending returns the queued and staged action names for the message,
// empty when nothing is pending.
func (t *Tracker) Pending(messageID uint64) (next, onDeck string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.load(messageID)
	if err != nil {
		return "", "", err
	}
	return state.NextAction, state.OnDeckAction, nil
}

// ShouldHide reports whether the action's button should be hidden
// because the action has already run for the message.
func (t *Tracker) ShouldHide(messageID uint64, kind domain.ActionKind) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.load(messageID)
	if err != nil {
		return false, err
	}
	return state.RunActions[kind.String()], nil
}

// ClearAfter discards button state for every message with an id greater
// than messageID. Used when a conversation is rewound.
func (t *Tracker) ClearAfter(messageID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys, err := t.store.Keys(keyPrefix)
	if err != nil {
		return domain.WrapOp("Tracker.ClearAfter", err)
	}
	for _, k := range keys {
		id, err := strconv.ParseUint(strings.TrimPrefix(k, keyPrefix), 10, 64)
		if err != nil {
			return domain.NewDomainError("Tracker.ClearAfter", domain.ErrStateStore,
				fmt.Sprintf("malformed key %q", k))
		}
		if id > messageID {
			if err := t.store.Delete(k); err != nil {
				return domain.WrapOp("Tracker.ClearAfter", err)
			}
		}
	}
	return nil
}

func (t *Tracker) load(messageID uint64) (domain.ButtonState, error) {
	state := domain.NewButtonState(messageID)
	ok, err := t.store.Get(key(messageID), &state)
	if err != nil {
		return state, domain.WrapOp("Tracker.load", err)
	}
	if !ok {
		return domain.NewButtonState(messageID), nil
	}
	if state.RunActions == nil {
		state.RunActions = make(map[string]bool)
	}
	return state, nil
}
