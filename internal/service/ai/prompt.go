package ai

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Generation policy applied to every remote request.
const (
	Temperature     float32 = 0.7
	TopP            float32 = 0.95
	TopK            float32 = 40
	MaxOutputTokens         = 150
)

const systemInstruction = "You are a compassionate AI therapist. Respond with empathy, understanding, and therapeutic guidance. " +
	"Keep responses conversational and supportive. Current emotion context: {emotion}."

// userPrompt folds the instruction, the emotion context and the user's text
// into the single user turn the service expects.
const userPrompt = systemInstruction + "\n\nUser: {query}\n\n" +
	"Please respond as a supportive AI therapist. Keep your response concise and conversational (2-3 sentences maximum):"

func newPromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.UserMessage(userPrompt),
	)
}
