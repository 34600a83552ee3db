package chat

import "time"

// Sender identifies who contributed a transcript message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Message is one immutable turn of the visible transcript.
type Message struct {
	ID        uint64    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Role tags a history turn sent to the language model.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one entry of the remote-context history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
