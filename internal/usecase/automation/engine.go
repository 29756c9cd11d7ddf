package automation

import (
	"os"
	"path/filepath"
	"strings"

	"conduit-ai/internal/domain"
)

// Engine decides whether a completed action may execute without human
// confirmation. It is pure and query-only: identical policy and subject
// always produce the same verdict, and evaluation has no side effects.
type Engine struct {
	policy domain.PolicyProvider
}

// NewEngine creates an engine reading policy from the provider on every
// decision, so settings changes take effect immediately.
func NewEngine(policy domain.PolicyProvider) *Engine {
	return &Engine{policy: policy}
}

// Allow reports whether an action of the given kind with the given
// subject (command text or file path) may run unconfirmed.
//
// Master flag off denies everything for the kind. With allow-anything
// set, everything passes unless the subject matches the deny list;
// otherwise the subject must match the allow list. Matching is
// substring-based in both directions: the subject containing the
// pattern or the pattern containing the subject both count.
func (e *Engine) Allow(kind domain.ActionKind, subject string) bool {
	kp := e.policy.Policy().ForKind(kind)
	if !kp.Enabled {
		return false
	}

	subject = normalizeSubject(kind, subject)

	if kp.AllowAnything {
		return !matchesAny(kp.DenyList, kind, subject)
	}
	return matchesAny(kp.AllowList, kind, subject)
}

// AllowEdit reports whether an edit to path may apply unconfirmed.
func (e *Engine) AllowEdit(path string) bool { return e.Allow(domain.ActionEdit, path) }

// AllowConsole reports whether a console command may run unconfirmed.
func (e *Engine) AllowConsole(command string) bool { return e.Allow(domain.ActionConsole, command) }

// AllowTerminal reports whether a terminal command may run unconfirmed.
func (e *Engine) AllowTerminal(command string) bool { return e.Allow(domain.ActionTerminal, command) }

// AllowFileRun reports whether running path may proceed unconfirmed.
func (e *Engine) AllowFileRun(path string) bool { return e.Allow(domain.ActionFileRun, path) }

func matchesAny(patterns []string, kind domain.ActionKind, subject string) bool {
	if subject == "" {
		// An empty subject would be "contained" by every pattern.
		return false
	}
	for _, p := range patterns {
		p = normalizeSubject(kind, p)
		if p == "" {
			continue
		}
		if strings.Contains(subject, p) || strings.Contains(p, subject) {
			return true
		}
	}
	return false
}

// normalizeSubject expands a leading ~ in file-path subjects and list
// entries so home-relative configuration matches absolute paths.
// Expansion failure leaves the value unchanged.
func normalizeSubject(kind domain.ActionKind, s string) string {
	if kind != domain.ActionEdit && kind != domain.ActionFileRun {
		return s
	}
	return expandHome(s)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
