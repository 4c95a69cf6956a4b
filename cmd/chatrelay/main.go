package main

import (
	"os"

	"github.com/spf13/cobra"

	"chatrelay/cmd/chatrelay/internal/chat"
	"chatrelay/cmd/chatrelay/internal/events"
	"chatrelay/cmd/chatrelay/internal/serve"
	"chatrelay/cmd/chatrelay/internal/version"
)

func NewChatrelayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Real-time direct message delivery",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		serve.NewServeCommand(),
		chat.NewChatCommand(),
		events.NewEventsCommand(),
		version.NewVersionCommand(),
	)
	return cmd
}

func main() {
	if err := NewChatrelayCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
