package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "relay-client",
	Short: "Talk to a voice relay from the terminal",
	Long: `relay-client connects to a voice relay over a websocket, records
utterances with an external command and plays the spoken replies.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("url", "ws://localhost:3000/ws", "Relay websocket URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(talkCmd)
}

func initConfig() {
	viper.SetEnvPrefix("relay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func newLogger() *slog.Logger {
	level, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = log.InfoLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "relay",
	})
	return slog.New(handler)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
