package speech

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

func TestParseSayVoices(t *testing.T) {
	output := "Alex                en_US    # Most people recognize me by my voice.\n" +
		"Bad News            en_US    # The light you see at the end of the tunnel is the headlamp.\n" +
		"\n" +
		"Samantha            en_US    # Hello, my name is Samantha.\n"

	voices := parseSayVoices(output)

	assert.Equal(t, []speech.Voice{
		{Name: "Alex", Language: "en_US"},
		{Name: "Bad News", Language: "en_US"},
		{Name: "Samantha", Language: "en_US"},
	}, voices)
}

func TestWordsPerMinute(t *testing.T) {
	assert.Equal(t, 175, wordsPerMinute(0))
	assert.Equal(t, 175, wordsPerMinute(1))
	assert.Equal(t, 210, wordsPerMinute(1.2))
}

func TestSayArgs(t *testing.T) {
	args := sayArgs(speech.Utterance{Text: "hello", Rate: 1.2, Volume: 0.9, Voice: "Samantha"})
	assert.Equal(t, []string{"-v", "Samantha", "-r", "210", "--", "[[volm 0.90]] hello"}, args)

	args = sayArgs(speech.Utterance{Text: "hello", Rate: 1, Volume: 1})
	assert.Equal(t, []string{"-r", "175", "--", "hello"}, args)
}

func TestSayArgsEndsOptionsBeforeText(t *testing.T) {
	args := sayArgs(speech.Utterance{Text: "-v sounds like a flag", Rate: 1, Volume: 1})

	require.Len(t, args, 4)
	assert.Equal(t, "--", args[2])
	assert.Equal(t, "-v sounds like a flag", args[3])
}

func TestSayDeviceMissingBinary(t *testing.T) {
	device := NewSayDevice(logging.Nop(), "definitely-not-a-real-say-binary")

	assert.False(t, device.Available())
	assert.Error(t, device.Speak(speech.Utterance{ID: "u1", Text: "hi"}, func(speech.Event) {}))
	assert.Empty(t, device.Voices())
}

func TestSayDeviceLifecycle(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true binary not available")
	}
	device := NewSayDevice(logging.Nop(), "true")

	events := make(chan speech.Event, 4)
	require.NoError(t, device.Speak(speech.Utterance{ID: "u1", Text: "hi"}, func(ev speech.Event) { events <- ev }))

	for _, want := range []speech.EventKind{speech.EventStarted, speech.EventEnded} {
		select {
		case ev := <-events:
			assert.Equal(t, "u1", ev.UtteranceID)
			assert.Equal(t, want, ev.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	assert.Eventually(t, func() bool { return !device.Speaking() }, time.Second, 5*time.Millisecond)
}
