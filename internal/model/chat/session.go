package chat

import "github.com/zhouzirui/talking-therapist/backend/internal/analysis/emotion"

// State is a point-in-time view of the session, shaped for renderers.
type State struct {
	Emotion   emotion.Label `json:"emotion"`
	Busy      bool          `json:"busy"`
	Speaking  bool          `json:"speaking"`
	IsTalking bool          `json:"isTalking"`
	Messages  int           `json:"messages"`
}
