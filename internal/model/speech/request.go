package speech

// Utterance is a single speak command issued to a device.
type Utterance struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Rate   float32 `json:"rate"`
	Pitch  float32 `json:"pitch"`
	Volume float32 `json:"volume"`
	// Voice is empty when the device default should be used.
	Voice string `json:"voice,omitempty"`
}

// Voice is a voice the device can speak with.
type Voice struct {
	Name     string `json:"name"`
	Language string `json:"lang,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// Audio is a clip synthesized server-side for one utterance.
type Audio struct {
	Format     string `json:"format"`
	Data       []byte `json:"audio"`
	DurationMs int64  `json:"durationMs,omitempty"`
}
