package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/fallback"
	"github.com/zhouzirui/talking-therapist/backend/internal/config"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
)

var (
	deviceName string
	logLevel   string
	seed       uint64
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Talk to the therapist from a terminal",
		Long:  "chatcli runs one conversation session against the configured model, printing each reply with its emotion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateDevice(deviceName); err != nil {
				return err
			}
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			log := logging.New(nil, logLevel)

			gen := fallback.New(nil)
			if cmd.Flags().Changed("seed") {
				gen = fallback.NewSeeded(seed)
			}

			ctx := cmd.Context()
			chatModel, provider, err := ai.NewChatModel(ctx, cfg.AI)
			if err != nil {
				log.Warn().Err(err).Msg("remote model unavailable, using local replies")
				chatModel, provider = nil, config.ProviderNone
			}
			aiSvc, err := ai.NewService(ctx, chatModel, gen, log.Sub("ai"), ai.Options{
				Timeout:  cfg.AI.RequestTimeout,
				Provider: string(provider),
			})
			if err != nil {
				return err
			}

			device, err := newDevice(deviceName, log)
			if err != nil {
				return err
			}

			ctrl := speech.NewController(device, log.Sub("speech"), speech.Options{
				VoicePreferences: cfg.Speech.VoicePreferences,
			})
			session := chat.NewService(aiSvc, ctrl, log.Sub("session"), chat.Options{
				WarmupDelay: cfg.Speech.WarmupDelay,
			})
			defer session.Close()

			return repl(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&deviceName, "device", string(config.DeviceNone), "speech output (say, none)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for local reply selection")

	return cmd
}

func validateDevice(name string) error {
	switch config.Device(name) {
	case config.DeviceSay, config.DeviceNone:
		return nil
	default:
		return fmt.Errorf("invalid --device value %q (want say or none)", name)
	}
}

func newDevice(name string, log *logging.Logger) (speech.Device, error) {
	if err := validateDevice(name); err != nil {
		return nil, err
	}
	if config.Device(name) == config.DeviceNone {
		return speech.NopDevice{}, nil
	}
	say := speech.NewSayDevice(log.Sub("say"), "")
	if !say.Available() {
		return nil, errors.New("say command not found")
	}
	return say, nil
}

// repl reads lines until EOF or /quit. Lines starting with a slash are commands.
func repl(ctx context.Context, session *chat.Service, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(out, "Talk to me. Commands: /clear /state /quit")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			session.Clear()
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		case "/state":
			st := session.State()
			fmt.Fprintf(out, "emotion=%s busy=%t speaking=%t messages=%d\n", st.Emotion, st.Busy, st.Speaking, st.Messages)
			continue
		}

		ex, err := session.Submit(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "[%s] %s\n", ex.Emotion, ex.Reply.Text)
	}
}
