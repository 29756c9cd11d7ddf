package automation

import (
	"testing"

	"conduit-ai/internal/adapter/store"
	"conduit-ai/internal/domain"
)

func TestSettingsInMemory(t *testing.T) {
	s, err := NewSettings(domain.AutomationPolicy{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	kp := domain.KindPolicy{Enabled: true, AllowList: []string{"ls"}}
	if err := s.SetKindPolicy(domain.ActionTerminal, kp); err != nil {
		t.Fatal(err)
	}

	got := s.Policy().ForKind(domain.ActionTerminal)
	if !got.Enabled || len(got.AllowList) != 1 {
		t.Fatalf("policy = %+v", got)
	}
}

func TestSettingsPersistAcrossRestart(t *testing.T) {
	kv := store.NewMemory()

	first, err := NewSettings(domain.AutomationPolicy{}, kv)
	if err != nil {
		t.Fatal(err)
	}
	kp := domain.KindPolicy{Enabled: true, AllowAnything: true, DenyList: []string{"rm"}}
	if err := first.SetKindPolicy(domain.ActionConsole, kp); err != nil {
		t.Fatal(err)
	}

	// A fresh Settings over the same store must see the change; the
	// seeded initial policy is only a fallback for empty stores.
	second, err := NewSettings(domain.AutomationPolicy{}, kv)
	if err != nil {
		t.Fatal(err)
	}
	got := second.Policy().ForKind(domain.ActionConsole)
	if !got.Enabled || !got.AllowAnything || len(got.DenyList) != 1 {
		t.Fatalf("restored policy = %+v", got)
	}
}

func TestPolicyReturnsCopy(t *testing.T) {
	s, err := NewSettings(domain.AutomationPolicy{
		Kinds: map[domain.ActionKind]domain.KindPolicy{
			domain.ActionEdit: {Enabled: true},
		},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := s.Policy()
	snapshot.Kinds[domain.ActionEdit] = domain.KindPolicy{}

	if !s.Policy().ForKind(domain.ActionEdit).Enabled {
		t.Fatal("mutating the snapshot leaked into live policy")
	}
}
