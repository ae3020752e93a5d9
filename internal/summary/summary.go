// Package summary condenses long debate histories into a bounded digest.
//
// The condensation is lossy by design: the middle of a long exchange is
// replaced by an elision marker, and only the first sentence of each elided
// entry survives as a per-role key argument. That information loss is the
// accepted trade-off for keeping prompt context bounded, not a defect.
package summary

import (
	"fmt"
	"strings"
)

// Entry is one prior debate message, tagged with the role that spoke it.
// The Text field is the fully formatted transcript entry; Body is the
// utterance alone, used for key-argument extraction.
type Entry struct {
	Role string
	Text string
	Body string
}

// Options tunes the condensation. The defaults reproduce the shipped
// behavior: histories of 6 entries or fewer pass through untouched, longer
// ones keep the first 2 and last 4 entries around an elision marker.
type Options struct {
	Threshold       int // max history length before condensation kicks in
	Head            int // entries kept verbatim from the start
	Tail            int // entries kept verbatim from the end
	MaxKeyArguments int // per-role cap on extracted key arguments
}

// DefaultOptions returns the standard 6/2/4/3 configuration.
func DefaultOptions() Options {
	return Options{Threshold: 6, Head: 2, Tail: 4, MaxKeyArguments: 3}
}

// Digest is the bounded condensation result. Summary preserves entry order;
// KeyArguments maps role id to up to MaxKeyArguments first-sentence excerpts
// drawn from the elided middle, in first-seen order.
type Digest struct {
	Summary      []string
	KeyArguments map[string][]string
}

// Summarize condenses entries per opts. Histories within the threshold are
// returned unchanged with an empty key-argument digest.
func Summarize(entries []Entry, opts Options) Digest {
	if opts.Threshold <= 0 {
		opts = DefaultOptions()
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}

	if len(entries) <= opts.Threshold {
		return Digest{Summary: texts, KeyArguments: map[string][]string{}}
	}

	elided := len(entries) - opts.Head - opts.Tail
	condensed := make([]string, 0, opts.Head+opts.Tail+1)
	condensed = append(condensed, texts[:opts.Head]...)
	condensed = append(condensed, fmt.Sprintf("[... %d messages elided for brevity ...]", elided))
	condensed = append(condensed, texts[len(texts)-opts.Tail:]...)

	middle := entries[opts.Head : len(entries)-opts.Tail]
	return Digest{
		Summary:      condensed,
		KeyArguments: extractKeyArguments(middle, opts.MaxKeyArguments),
	}
}

// extractKeyArguments takes the first sentence of each elided entry as that
// role's key argument, deduplicating exact matches and capping per role.
func extractKeyArguments(entries []Entry, limit int) map[string][]string {
	out := map[string][]string{}
	seen := map[string]map[string]bool{}

	for _, e := range entries {
		sentence := FirstSentence(e.Body)
		if sentence == "" {
			continue
		}
		if seen[e.Role] == nil {
			seen[e.Role] = map[string]bool{}
		}
		if seen[e.Role][sentence] || len(out[e.Role]) >= limit {
			continue
		}
		seen[e.Role][sentence] = true
		out[e.Role] = append(out[e.Role], sentence)
	}
	return out
}

// FirstSentence returns the text up to (excluding) the first sentence-terminal
// punctuation mark, trimmed. An entry with no terminal punctuation is returned
// whole.
func FirstSentence(s string) string {
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
