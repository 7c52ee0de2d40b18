package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Printf("ragflow %s\n", buildVersion)
			fmt.Printf("  commit: %s\n", buildCommit)
			fmt.Printf("  built:  %s\n", buildDate)
		},
	}
}
