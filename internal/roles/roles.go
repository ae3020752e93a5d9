package roles

import "fmt"

// Role IDs are the fixed, compile-time set of debate stances.
const (
	Proponent = "proponent"
	Critic    = "critic"
)

// Role is a debate stance: a display name shown in transcripts and the
// system prompt that enforces the stance during generation.
type Role struct {
	ID           string
	DisplayName  string
	SystemPrompt string
}

// ErrUnknownRole is returned by Lookup for role ids outside the fixed set.
var ErrUnknownRole = fmt.Errorf("unknown role")

var registry = map[string]Role{
	Proponent: {
		ID:          Proponent,
		DisplayName: "Proponent",
		SystemPrompt: `You are taking part in a debate as the PROPONENT of the claim stated in the topic.

CRITICAL:
- You SUPPORT and DEFEND the thesis stated in the debate topic
- If the topic asserts something negative, you argue that it is true
- If the topic asserts something positive, you argue that it is true
- Your answers must be at most 3 sentences!

USE THE CONTEXT:
- Read the full debate history that will be provided carefully
- ANSWER the opponent's concrete arguments, do not ignore them
- DEVELOP your own line of argument building on what was already said
- REFER back to earlier points when it strengthens your position

Every answer is 1-3 strong arguments IN SUPPORT of the debate topic.`,
	},
	Critic: {
		ID:          Critic,
		DisplayName: "Critic",
		SystemPrompt: `You are taking part in a debate as the CRITIC of the claim stated in the topic.

CRITICAL:
- You DISPUTE and REFUTE the thesis stated in the debate topic
- If the topic asserts something negative, you argue that it is false or exaggerated
- If the topic asserts something positive, you find the weak points and refute it
- Your answers must be at most 3 sentences!

USE THE CONTEXT:
- Read the full debate history that will be provided carefully
- ATTACK the concrete weak points in the opponent's arguments
- Do NOT repeat counterarguments you have already used
- DEEPEN the critique every round, finding new vulnerabilities

Every answer is 1-3 precise counterarguments AGAINST the debate topic.`,
	},
}

// Lookup resolves a role id. The registry is immutable after init and safe
// for concurrent reads.
func Lookup(id string) (Role, error) {
	r, ok := registry[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: %q", ErrUnknownRole, id)
	}
	return r, nil
}

// IDs returns the known role ids in a stable order.
func IDs() []string {
	return []string{Proponent, Critic}
}

// Opponent returns the opposing role id. Debates always pair the two fixed
// stances, so this is a simple flip.
func Opponent(id string) string {
	if id == Proponent {
		return Critic
	}
	return Proponent
}

// ExampleTopics are starter topics surfaced to the setup UI.
var ExampleTopics = []string{
	"Artificial intelligence will replace most human professions within the next 20 years",
	"Social media does more harm than good to modern society",
	"Universal basic income is a necessity for the future economy",
	"Space exploration should be a priority for humanity",
	"Genetic modification of humans is ethically justified",
	"Cryptocurrencies will replace traditional money",
	"Remote work is more effective than office work",
	"University education is obsolete in the internet age",
}
