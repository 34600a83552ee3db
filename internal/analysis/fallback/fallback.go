// Package fallback produces canned therapist replies when the remote model
// cannot answer.
package fallback

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Category names the bucket a user message falls into.
type Category string

const (
	Greeting Category = "greeting"
	Stress   Category = "stress"
	Sadness  Category = "sadness"
	Anxiety  Category = "anxiety"
	Anger    Category = "anger"
	Default  Category = "default"
)

type matcher struct {
	category Category
	keywords []string
}

// matchers are checked in order against the user's message; first match wins.
var matchers = []matcher{
	{Greeting, []string{"hello", "hi", "hey"}},
	{Stress, []string{"stress", "overwhelmed", "pressure"}},
	{Sadness, []string{"sad", "depressed", "down"}},
	{Anxiety, []string{"anxious", "worry", "nervous"}},
	{Anger, []string{"angry", "mad", "frustrated"}},
}

var replies = map[Category][]string{
	Greeting: {
		"Hello! I'm here to listen and support you. How are you feeling today?",
		"Welcome! I'm ready to have a meaningful conversation with you. What's on your mind?",
		"Hi there! I'm here to help you work through whatever you're experiencing. How can I assist you today?",
	},
	Stress: {
		"I can sense you're feeling stressed. Let's take a moment to breathe together. What's causing you the most concern right now?",
		"Stress can be overwhelming. Remember, it's okay to feel this way. Can you tell me more about what's troubling you?",
		"I hear that you're under a lot of pressure. Let's explore what's happening and find some ways to help you cope.",
	},
	Sadness: {
		"I'm sorry you're feeling sad. Your feelings are valid, and I'm here to listen. Would you like to talk about what's bringing you down?",
		"It sounds like you're going through a difficult time. Remember that it's okay to not be okay. What would be most helpful for you right now?",
		"I can hear the sadness in your words. Let's work through this together. What's been the hardest part for you?",
	},
	Anxiety: {
		"Anxiety can feel very overwhelming. Let's take this one step at a time. What specific worries are you carrying right now?",
		"I understand anxiety can be really challenging. Remember to breathe. Can you tell me what's making you feel most anxious?",
		"Anxiety often makes everything feel bigger than it is. Let's break this down together. What's the main source of your worry?",
	},
	Anger: {
		"I can feel the intensity of your emotions. It's okay to be angry. Can you help me understand what's behind these feelings?",
		"Anger is a natural emotion, and it sounds like you have good reasons to feel this way. What happened that led to these feelings?",
		"I hear your frustration. Let's explore what's causing this anger and find healthy ways to process these emotions.",
	},
	Default: {
		"I'm here to listen and support you. Can you tell me more about what you're experiencing?",
		"Thank you for sharing that with me. How are you feeling about this situation?",
		"I appreciate you opening up to me. What would be most helpful for you right now?",
	},
}

// Generator picks a canned reply for a user message. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator drawing from rnd. A nil rnd falls back to a
// randomly seeded source.
func New(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rnd: rnd}
}

// NewSeeded returns a Generator with a deterministic source.
func NewSeeded(seed uint64) *Generator {
	return New(rand.New(rand.NewPCG(seed, seed)))
}

// Reply returns one of the candidates of the category matched by userText.
func (g *Generator) Reply(userText string) string {
	candidates := replies[Classify(userText)]

	g.mu.Lock()
	idx := g.rnd.IntN(len(candidates))
	g.mu.Unlock()

	return candidates[idx]
}

// Classify returns the category for a user message.
func Classify(userText string) Category {
	message := strings.ToLower(userText)
	for _, m := range matchers {
		for _, word := range m.keywords {
			if strings.Contains(message, word) {
				return m.category
			}
		}
	}
	return Default
}

// Candidates returns a copy of the replies available for a category.
func Candidates(category Category) []string {
	return append([]string(nil), replies[category]...)
}
