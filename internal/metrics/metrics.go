package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		repliesTotal,
		replyLatencyMs,
		emotionsTotal,
		submissionsRejected,
		utterancesTotal,
	)
}

var (
	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapist_replies_total",
			Help: "Agent replies produced, by source (remote or fallback).",
		},
		[]string{"source"},
	)

	replyLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "therapist_reply_latency_ms",
			Help:    "Time from submit to reply settlement in milliseconds.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
		},
		[]string{"source"},
	)

	emotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapist_emotions_total",
			Help: "Emotion labels assigned to agent replies.",
		},
		[]string{"emotion"},
	)

	submissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapist_submissions_rejected_total",
			Help: "User submissions dropped at the session boundary, by reason.",
		},
		[]string{"reason"},
	)

	utterancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapist_utterances_total",
			Help: "Speech utterance outcomes reported by the output device.",
		},
		[]string{"outcome"},
	)
)

// ObserveReply records a settled reply.
func ObserveReply(source string, latency time.Duration) {
	lbl := norm(source)
	repliesTotal.WithLabelValues(lbl).Inc()
	replyLatencyMs.WithLabelValues(lbl).Observe(float64(latency.Milliseconds()))
}

// ObserveEmotion records the emotion assigned to a reply.
func ObserveEmotion(emotion string) {
	emotionsTotal.WithLabelValues(norm(emotion)).Inc()
}

// SubmissionRejected records a dropped submission.
func SubmissionRejected(reason string) {
	submissionsRejected.WithLabelValues(norm(reason)).Inc()
}

// ObserveUtterance records an utterance lifecycle outcome.
func ObserveUtterance(outcome string) {
	utterancesTotal.WithLabelValues(norm(outcome)).Inc()
}

func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
