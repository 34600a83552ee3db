package speech

// EventKind is an utterance lifecycle transition reported by a device.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventEnded   EventKind = "ended"
	EventErrored EventKind = "errored"
)

// Event reports a lifecycle transition for one utterance.
type Event struct {
	UtteranceID string    `json:"utteranceId"`
	Kind        EventKind `json:"kind"`
	Err         string    `json:"error,omitempty"`
}
