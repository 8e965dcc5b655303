package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/eleven-am/voice-relay/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start an interactive voice session",
	Long: `talk opens a session and reads commands from stdin:

  r, record         start or stop recording (stops by itself after the limit)
  i, interrupt      stop the reply that is playing
  s, send <file>    send an audio file as one utterance
  q, quit           leave`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().String("play-command", "mpg123 -q {file}", "Command used to play replies")
	talkCmd.Flags().String("speak-command", "", "Command used to voice text-only replies, e.g. \"espeak {text}\"")
	talkCmd.Flags().String("record-command", "arecord -q -f cd -t wav {output}", "Command used to record an utterance")
	talkCmd.Flags().String("record-mime", "audio/wav", "Mime type of recorded audio")
	talkCmd.Flags().Duration("record-limit", client.MaxRecordingDuration, "Longest recording before it stops by itself")

	for _, name := range []string{"play-command", "speak-command", "record-command", "record-mime", "record-limit"} {
		viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), talkCmd.Flags().Lookup(name))
	}
}

func runTalk(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := client.Config{
		URL:         viper.GetString("url"),
		RecordLimit: viper.GetDuration("record_limit"),
		Log:         logger,
		OnChange: func(ui client.UI) {
			logger.Info(ui.Status, "recording", ui.Recording, "playing", ui.Playing)
		},
		OnReply: func(e client.Entry) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", e.Role, e.Text)
		},
	}

	if line := viper.GetString("play_command"); line != "" {
		player, err := client.NewCommandPlayer(line, "")
		if err != nil {
			return fmt.Errorf("play command: %w", err)
		}
		cfg.Player = player
	}
	if line := viper.GetString("speak_command"); line != "" {
		speaker, err := client.NewCommandSpeaker(line)
		if err != nil {
			return fmt.Errorf("speak command: %w", err)
		}
		cfg.Speaker = speaker
	}
	if line := viper.GetString("record_command"); line != "" {
		source, err := client.NewCommandSource(line, viper.GetString("record_mime"), "")
		if err != nil {
			return fmt.Errorf("record command: %w", err)
		}
		cfg.Source = source
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := client.New(cfg)
	go func() {
		readCommands(ctx, cmd.InOrStdin(), c, logger)
		cancel()
	}()

	err := c.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readCommands(ctx context.Context, in io.Reader, c *client.Client, logger *slog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "r", "record":
			if err := c.Toggle(ctx); err != nil {
				logger.Warn("cannot record", "error", err)
			}
		case "i", "interrupt":
			if sent, err := c.Interrupt(); err != nil {
				logger.Warn("interrupt failed", "error", err)
			} else if !sent {
				logger.Info("nothing is playing")
			}
		case "s", "send":
			if len(fields) < 2 {
				logger.Warn("usage: send <file>")
				continue
			}
			if err := sendFile(c, fields[1]); err != nil {
				logger.Warn("send failed", "error", err)
			}
		case "q", "quit", "exit":
			return
		default:
			logger.Warn("unknown command", "command", fields[0])
		}
	}
}

func sendFile(c *client.Client, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.SendAudio(data, mime.TypeByExtension(filepath.Ext(path)))
}
