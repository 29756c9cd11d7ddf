package automation

import (
	"sync"

	"conduit-ai/internal/domain"
)

const policyKey = "automation/policy"

// Settings holds the live automation policy. Reads are lock-cheap and
// happen on every decision; writes come only from explicit user
// settings changes and are serialized per kind. When a StateStore is
// attached, every change is snapshotted so policy survives restarts.
type Settings struct {
	mu     sync.RWMutex
	policy domain.AutomationPolicy
	store  domain.StateStore
}

// NewSettings creates a settings holder seeded with an initial policy.
// store may be nil for purely in-memory policy.
func NewSettings(initial domain.AutomationPolicy, store domain.StateStore) (*Settings, error) {
	if initial.Kinds == nil {
		initial.Kinds = make(map[domain.ActionKind]domain.KindPolicy)
	}
	s := &Settings{policy: initial, store: store}

	if store != nil {
		var persisted persistedPolicy
		ok, err := store.Get(policyKey, &persisted)
		if err != nil {
			return nil, domain.WrapOp("automation.NewSettings", err)
		}
		if ok {
			s.policy = persisted.toPolicy()
		}
	}
	return s, nil
}

// Policy implements domain.PolicyProvider.
func (s *Settings) Policy() domain.AutomationPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.AutomationPolicy{Kinds: make(map[domain.ActionKind]domain.KindPolicy, len(s.policy.Kinds))}
	for k, v := range s.policy.Kinds {
		out.Kinds[k] = v
	}
	return out
}

// SetKindPolicy replaces the policy for one action kind and persists
// the snapshot when a store is attached.
func (s *Settings) SetKindPolicy(kind domain.ActionKind, kp domain.KindPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy.Kinds[kind] = kp
	if s.store == nil {
		return nil
	}
	return domain.WrapOp("Settings.SetKindPolicy", s.store.Set(policyKey, fromPolicy(s.policy)))
}

// persistedPolicy is the store representation; kinds keyed by name so
// the snapshot stays readable and stable across enum reordering.
type persistedPolicy struct {
	Kinds map[string]domain.KindPolicy `json:"kinds"`
}

func fromPolicy(p domain.AutomationPolicy) persistedPolicy {
	out := persistedPolicy{Kinds: make(map[string]domain.KindPolicy, len(p.Kinds))}
	for k, v := range p.Kinds {
		out.Kinds[k.String()] = v
	}
	return out
}

func (p persistedPolicy) toPolicy() domain.AutomationPolicy {
	out := domain.AutomationPolicy{Kinds: make(map[domain.ActionKind]domain.KindPolicy, len(p.Kinds))}
	for name, v := range p.Kinds {
		if k, ok := domain.ParseActionKind(name); ok {
			out.Kinds[k] = v
		}
	}
	return out
}
