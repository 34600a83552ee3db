package speech

import (
	"strings"

	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

// SelectVoice returns the first available voice whose name contains any of
// the preferred fragments. ok is false when the device default should be used.
func SelectVoice(voices []speech.Voice, preferences []string) (voice speech.Voice, ok bool) {
	for _, candidate := range voices {
		name := strings.TrimSpace(candidate.Name)
		if name == "" {
			continue
		}
		for _, pref := range preferences {
			if pref != "" && strings.Contains(name, pref) {
				return candidate, true
			}
		}
	}
	return speech.Voice{}, false
}

// Normalize collapses whitespace runs, line breaks included, to single spaces
// and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
