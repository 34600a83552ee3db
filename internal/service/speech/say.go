package speech

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

// sayBaseRate is the words-per-minute rate 'say' uses at 1.0x.
const sayBaseRate = 175

// SayDevice speaks through the macOS 'say' command. Pitch is left to the voice.
type SayDevice struct {
	log    *logging.Logger
	binary string

	mu     sync.Mutex
	active string
	cancel context.CancelFunc

	voicesOnce sync.Once
	voices     []speech.Voice
}

var _ Device = (*SayDevice)(nil)

// NewSayDevice creates a device running binary ("say" when empty).
func NewSayDevice(log *logging.Logger, binary string) *SayDevice {
	if log == nil {
		log = logging.Nop()
	}
	if binary == "" {
		binary = "say"
	}
	return &SayDevice{log: log, binary: binary}
}

// Available reports whether the binary can be found.
func (d *SayDevice) Available() bool {
	_, err := exec.LookPath(d.binary)
	return err == nil
}

// Speak starts the process and reports started, then ended or errored when it exits.
func (d *SayDevice) Speak(u speech.Utterance, notify func(speech.Event)) error {
	if !d.Available() {
		return fmt.Errorf("speech: %s not available", d.binary)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, d.binary, sayArgs(u)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("speech: start %s: %w", d.binary, err)
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.active = u.ID
	d.cancel = cancel
	d.mu.Unlock()

	d.log.Debug().
		Str("utterance", u.ID).
		Str("voice", u.Voice).
		Int("textLen", len(u.Text)).
		Msg("speaking with say")

	go func() {
		notify(speech.Event{UtteranceID: u.ID, Kind: speech.EventStarted})
		err := cmd.Wait()
		killed := errors.Is(ctx.Err(), context.Canceled)

		d.mu.Lock()
		if d.active == u.ID {
			d.active = ""
			d.cancel = nil
		}
		d.mu.Unlock()
		cancel()

		if err != nil && !killed {
			notify(speech.Event{UtteranceID: u.ID, Kind: speech.EventErrored, Err: err.Error()})
			return
		}
		notify(speech.Event{UtteranceID: u.ID, Kind: speech.EventEnded})
	}()
	return nil
}

// Cancel kills the running process, if any.
func (d *SayDevice) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.active = ""
	d.cancel = nil
}

func (d *SayDevice) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != ""
}

// Voices lists installed voices once via 'say -v ?'.
func (d *SayDevice) Voices() []speech.Voice {
	d.voicesOnce.Do(func() {
		if !d.Available() {
			return
		}
		out, err := exec.Command(d.binary, "-v", "?").Output()
		if err != nil {
			d.log.Warn().Err(err).Msg("failed to list say voices")
			return
		}
		d.voices = parseSayVoices(string(out))
	})
	return append([]speech.Voice(nil), d.voices...)
}

func sayArgs(u speech.Utterance) []string {
	args := make([]string, 0, 6)
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	args = append(args, "-r", strconv.Itoa(wordsPerMinute(u.Rate)), "--")
	if u.Volume > 0 && u.Volume != 1 {
		// embedded volume command understood by the speech synthesizer
		return append(args, fmt.Sprintf("[[volm %.2f]] %s", u.Volume, u.Text))
	}
	return append(args, u.Text)
}

func wordsPerMinute(rate float32) int {
	if rate <= 0 {
		return sayBaseRate
	}
	return int(float32(sayBaseRate)*rate + 0.5)
}

// parseSayVoices reads lines like "Samantha   en_US   # Hello, my name is Samantha.".
func parseSayVoices(output string) []speech.Voice {
	var voices []speech.Voice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		voices = append(voices, speech.Voice{
			Name:     strings.Join(fields[:len(fields)-1], " "),
			Language: fields[len(fields)-1],
		})
	}
	return voices
}
