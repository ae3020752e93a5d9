// Package prompt assembles the bounded per-turn context sent to a
// generation backend.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sparlabs/rostrum/internal/roles"
	"github.com/sparlabs/rostrum/internal/summary"
)

// Turn is one prior utterance as the compiler sees it: a structured record,
// not rendered text, so speaker identity is carried by the Role tag rather
// than recovered by string matching.
type Turn struct {
	Role    string
	Backend string
	Round   int
	Text    string
}

// Bundle is the fully assembled context for a single generation call. It is
// ephemeral: built fresh per turn and discarded after the provider call.
type Bundle struct {
	System string
	User   string
}

// Compiler builds prompt bundles. Summary options control when and how long
// histories are condensed.
type Compiler struct {
	opts summary.Options
}

// New returns a Compiler with the given summary options; zero options fall
// back to the defaults.
func New(opts summary.Options) *Compiler {
	if opts.Threshold <= 0 {
		opts = summary.DefaultOptions()
	}
	return &Compiler{opts: opts}
}

// Compile assembles the context for the speaking role's turn. Round framing:
// round 1 asks for an opening position and carries no history; the final
// round asks for a concluding synthesis; middle rounds carry the key-argument
// digest (when history is long enough to be condensed), the opponent's last
// message, the (possibly condensed) history and a three-part task directive.
func (c *Compiler) Compile(topic string, round, totalRounds int, history []Turn, speaking roles.Role) Bundle {
	var b strings.Builder

	fmt.Fprintf(&b, "Debate topic: %q\n", topic)
	fmt.Fprintf(&b, "Round %d of %d\n\n", round, totalRounds)

	if round == 1 {
		b.WriteString("This is the first round of the debate. Present your position on the topic.\n")
		b.WriteString("Lay out your main arguments clearly and with structure.\n")
	} else {
		c.writeExchange(&b, history, speaking)

		if round == totalRounds {
			b.WriteString("This is the closing round. Sum up the discussion.\n")
			b.WriteString("Make a strong closing statement, condensing your position and answering the key arguments.\n")
		} else {
			b.WriteString("YOUR TASK:\n")
			b.WriteString("1. Answer the opponent's last argument\n")
			b.WriteString("2. Develop your own line of argument\n")
			b.WriteString("3. Bring in new facts or examples\n")
		}
	}

	b.WriteString("\nLIMIT: your answer must be at most 3 sentences! Make every sentence count.")

	return Bundle{System: speaking.SystemPrompt, User: b.String()}
}

// writeExchange emits the digest, opponent highlight and history blocks for
// middle and closing rounds.
func (c *Compiler) writeExchange(b *strings.Builder, history []Turn, speaking roles.Role) {
	entries := formatHistory(history)
	condensed := len(history) > c.opts.Threshold

	digest := summary.Summarize(entries, c.opts)
	if condensed {
		writeKeyArguments(b, digest.KeyArguments)
	}

	if last, ok := lastOpponentTurn(history, speaking.ID); ok {
		b.WriteString("OPPONENT'S LAST ARGUMENT:\n")
		b.WriteString(last.Text)
		b.WriteString("\n\n")
		b.WriteString("ANSWER THIS: look for the weak spots or the strong points of that argument.\n\n")
	}

	if condensed {
		b.WriteString("CONDENSED DEBATE HISTORY:\n")
	} else {
		b.WriteString("FULL DEBATE HISTORY:\n")
	}
	b.WriteString(strings.Join(digest.Summary, "\n\n---\n\n"))
	b.WriteString("\n\n")
}

func writeKeyArguments(b *strings.Builder, args map[string][]string) {
	if len(args) == 0 {
		return
	}
	b.WriteString("KEY ARGUMENTS SO FAR:\n")
	// Stable order: proponent first, then critic.
	for _, id := range roles.IDs() {
		if points := args[id]; len(points) > 0 {
			role, err := roles.Lookup(id)
			name := id
			if err == nil {
				name = role.DisplayName
			}
			fmt.Fprintf(b, "%s: %s\n", name, strings.Join(points, "; "))
		}
	}
	b.WriteString("\n")
}

// lastOpponentTurn scans history newest-first for the most recent turn spoken
// by any role other than the given one. Absence is not an error: round 1 has
// no history and the highlight block is simply omitted.
func lastOpponentTurn(history []Turn, speakingRole string) (Turn, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != speakingRole {
			return history[i], true
		}
	}
	return Turn{}, false
}

// formatHistory renders turns into transcript entries, keeping the role tag
// alongside so the summarizer can attribute key arguments without parsing
// the rendered text.
func formatHistory(history []Turn) []summary.Entry {
	entries := make([]summary.Entry, len(history))
	for i, t := range history {
		name := t.Role
		if role, err := roles.Lookup(t.Role); err == nil {
			name = role.DisplayName
		}
		entries[i] = summary.Entry{
			Role: t.Role,
			Text: fmt.Sprintf("%s (%s, Round %d):\n%s", name, t.Backend, t.Round, t.Text),
			Body: t.Text,
		}
	}
	return entries
}
