package emotion

import "strings"

// Label is the expression the avatar renders for the current agent reply.
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Concerned Label = "concerned"
	Worried   Label = "worried"
	Serious   Label = "serious"
)

type rule struct {
	emotion  Label
	keywords []string
}

// rules are evaluated top to bottom; the first rule with a matching keyword wins.
var rules = []rule{
	{Sad, []string{"sad", "sorry", "difficult"}},
	{Concerned, []string{"stress", "overwhelming", "pressure"}},
	{Worried, []string{"anxiety", "worry", "nervous"}},
	{Serious, []string{"angry", "frustrated", "intensity"}},
	{Happy, []string{"hello", "welcome", "hi"}},
}

// Classify maps an agent reply to an emotion label using case-insensitive
// substring matching. Replies without any keyword are neutral.
func Classify(reply string) Label {
	normalized := strings.ToLower(reply)
	if strings.TrimSpace(normalized) == "" {
		return Neutral
	}

	for _, r := range rules {
		for _, word := range r.keywords {
			if strings.Contains(normalized, word) {
				return r.emotion
			}
		}
	}
	return Neutral
}

// Labels returns the closed emotion set in canonical order.
func Labels() []Label {
	return []Label{Neutral, Happy, Sad, Concerned, Worried, Serious}
}

// ParseLabel resolves a raw label, ignoring case and surrounding whitespace.
func ParseLabel(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels() {
		if label == normalized {
			return label, true
		}
	}
	return "", false
}
