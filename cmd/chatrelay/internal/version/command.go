package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatrelay/cmd/chatrelay/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatrelay %s\n%s\n", internal.FormatVersion(), internal.FormatBuildInfo())
		},
	}
}
