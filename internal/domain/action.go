package domain

// ActionKind is the closed set of action categories the automation
// engine decides over. Keeping this a fixed enum (rather than open
// strings) makes the engine a total function over the set.
type ActionKind int

const (
	ActionEdit ActionKind = iota
	ActionConsole
	ActionTerminal
	ActionFileRun
)

var actionKindNames = map[ActionKind]string{
	ActionEdit:     "edit",
	ActionConsole:  "console",
	ActionTerminal: "terminal",
	ActionFileRun:  "file_run",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseActionKind converts a config-level string to an ActionKind.
func ParseActionKind(s string) (ActionKind, bool) {
	for k, name := range actionKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// ActionKinds lists every kind, in declaration order.
func ActionKinds() []ActionKind {
	return []ActionKind{ActionEdit, ActionConsole, ActionTerminal, ActionFileRun}
}

// KindPolicy is the user-configured automation policy for one action kind.
type KindPolicy struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	AllowAnything bool     `json:"allow_anything" yaml:"allow_anything"`
	AllowList     []string `json:"allow_list" yaml:"allow_list"`
	DenyList      []string `json:"deny_list" yaml:"deny_list"`
}

// AutomationPolicy is the process-wide automation configuration, read on
// every decision and mutated only by explicit user settings changes.
type AutomationPolicy struct {
	Kinds map[ActionKind]KindPolicy `json:"kinds"`
}

// ForKind returns the policy for a kind, zero-valued (everything denied)
// if the kind has never been configured.
func (p AutomationPolicy) ForKind(kind ActionKind) KindPolicy {
	return p.Kinds[kind]
}

// PolicyProvider exposes read access to the current automation policy.
// The settings collaborator owns mutation and durability.
type PolicyProvider interface {
	Policy() AutomationPolicy
}
