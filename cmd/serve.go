package cmd

import (
	"fmt"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/droidglass/droidglass/config"
	"github.com/droidglass/droidglass/internal/devices"
	"github.com/droidglass/droidglass/internal/server"
	"github.com/droidglass/droidglass/internal/store"
	"github.com/droidglass/droidglass/internal/util"
)

type ServeOptions struct {
	Addr string
	Open bool
}

func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mirroring control server",
		Long: `Run the local control server. Browser clients connect to /ws/{serial}
and drive the on-screen control bar for that device.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
		Example: `  # Serve on the configured address:
  droidglass serve

  # Serve on a specific address and open the UI:
  droidglass serve --addr localhost:9000 --open`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Addr, "addr", config.GetServerAddr(), "Listen address for the control server")
	flags.BoolVar(&opts.Open, "open", false, "Open the control UI in the default browser")

	return cmd
}

func runServe(opts *ServeOptions) error {
	logger := util.GetLogger()

	keeper, err := devices.NewKeeper(config.GetADBPort(), config.GetRecordingsDir())
	if err != nil {
		return err
	}
	if err := keeper.Start(); err != nil {
		return err
	}
	defer keeper.Close()

	history, err := store.Open(config.GetHistoryPath())
	if err != nil {
		// History is best-effort; the control bar works without it.
		logger.Warn("Running without action history", "error", err)
		history = nil
	}
	if history != nil {
		defer history.Close()
	}

	if opts.Open {
		url := fmt.Sprintf("http://%s/", opts.Addr)
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("Failed to open browser", "url", url, "error", err)
		}
	}

	return server.New(opts.Addr, keeper, history).Run()
}
