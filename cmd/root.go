package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidglass/droidglass/internal/util"
	"github.com/droidglass/droidglass/internal/version"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "droidglass",
		Short: "Browser-based Android device mirroring control",
		Long: `droidglass runs a local control server for browser-based Android device
mirroring sessions: screenshots, recording, navigation keys, screen power,
rotation and the rest of the on-screen control bar.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				info := version.ClientInfo()
				fmt.Printf("droidglass version %s, build %s\n", info["Version"], info["GitCommit"])
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewDevicesCommand())
	rootCmd.AddCommand(NewScreenshotCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
