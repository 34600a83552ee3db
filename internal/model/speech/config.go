package speech

// Prosody describes how an utterance is voiced.
type Prosody struct {
	Rate   float32 `json:"rate"`
	Pitch  float32 `json:"pitch"`
	Volume float32 `json:"volume"`
}

// DefaultProsody is the fixed delivery used for every therapist reply.
var DefaultProsody = Prosody{
	Rate:   1.2,
	Pitch:  1.1,
	Volume: 0.9,
}

// DefaultVoicePreferences lists voice name fragments tried in order before
// falling back to the device default.
var DefaultVoicePreferences = []string{
	"Female",
	"Samantha",
	"Victoria",
	"Google UK English Female",
	"Microsoft Zira",
	"Google US English Female",
}
