package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidglass/droidglass/internal/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print detailed version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.ClientInfo()
			fmt.Printf("Version:    %s\n", info["Version"])
			fmt.Printf("Commit:     %s\n", info["GitCommit"])
			fmt.Printf("Built:      %s\n", info["FormattedTime"])
			fmt.Printf("Go version: %s\n", info["GoVersion"])
			fmt.Printf("OS/Arch:    %s/%s\n", info["OS"], info["Arch"])
		},
	}
}
