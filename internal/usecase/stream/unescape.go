package stream

import "strings"

// Private-use sentinels parked in place of escape sequences while later
// stages run. Each must be a rune the backend cannot emit as content.
const (
	sentinelBackslash = ""
	sentinelNewline   = ""
	sentinelTab       = ""
	sentinelQuote     = ""
)

// Unescape converts the doubly-encoded literal escape sequences inside
// extracted field text back into real characters.
//
// The replacement order is load-bearing. A naive single-pass unescape
// destroys information when one sequence's output collides with the
// token used to detect a later one: resolving `\\n` to a backslash
// followed by `n` before double backslashes are parked would turn an
// escaped backslash next to the letter n into a newline. Doubly-escaped
// sequences are therefore parked behind private sentinels first, then
// singly-escaped sequences are resolved, then the sentinels are resolved
// last, in the reverse order they were introduced, so a sentinel's
// replacement can never be re-matched by a later stage.
func Unescape(s string) string {
	// Stage 1-4: park doubly-escaped sequences behind sentinels.
	s = strings.ReplaceAll(s, `\\\\`, sentinelBackslash)
	s = strings.ReplaceAll(s, `\\n`, sentinelNewline)
	s = strings.ReplaceAll(s, `\\t`, sentinelTab)
	s = strings.ReplaceAll(s, `\\"`, sentinelQuote)

	// Stage 5: resolve remaining singly-escaped control sequences.
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")

	// Stage 6: resolve sentinels, newest first.
	s = strings.ReplaceAll(s, sentinelQuote, `"`)
	s = strings.ReplaceAll(s, sentinelTab, "\t")
	s = strings.ReplaceAll(s, sentinelNewline, "\n")
	s = strings.ReplaceAll(s, sentinelBackslash, `\`)

	return s
}
