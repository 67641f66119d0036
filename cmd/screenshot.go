package cmd

import (
	"os"
	"path/filepath"
	"strings"

	adb "github.com/basiooo/goadb"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/droidglass/droidglass/config"
	"github.com/droidglass/droidglass/internal/dispatch"
	"github.com/droidglass/droidglass/internal/recorder"
	"github.com/droidglass/droidglass/internal/session"
)

type ScreenshotOptions struct {
	Serial    string
	OutputDir string
}

func NewScreenshotCommand() *cobra.Command {
	opts := &ScreenshotOptions{}

	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture a device screenshot to the local disk",
		Long: `Capture a screenshot through the same pipeline the control bar uses:
remote screencap, chunked pull over the adb sync service, and cleanup of
the remote temporary file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreenshot(opts)
		},
		Example: `  # Screenshot the only connected device into the current directory:
  droidglass screenshot

  # Screenshot a specific device into a directory:
  droidglass screenshot --serial emulator-5554 --output ~/Pictures`,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Serial, "serial", "s", "", "Device serial (defaults to the only connected device)")
	flags.StringVarP(&opts.OutputDir, "output", "o", ".", "Directory to save the screenshot into")

	return cmd
}

// diskSurface is the host-UI runtime for the terminal: save-as-file writes
// to the local disk and the display primitives are no-ops.
type diskSurface struct {
	dir      string
	lastPath string
}

func (s *diskSurface) RequestFullscreen() error { return nil }
func (s *diskSurface) ExitFullscreen() error    { return nil }
func (s *diskSurface) ResizeVideoToFill()       {}
func (s *diskSurface) FocusVideo()              {}

func (s *diskSurface) SaveArtifact(name, mimeType string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	s.lastPath = path
	return nil
}

func runScreenshot(opts *ScreenshotOptions) error {
	client, err := adb.NewWithConfig(adb.ServerConfig{Port: config.GetADBPort()})
	if err != nil {
		return errors.Wrap(err, "failed to create adb client")
	}
	if err := client.StartServer(); err != nil {
		return errors.Wrap(err, "failed to start adb server")
	}

	descriptor := adb.AnyDevice()
	if opts.Serial != "" {
		descriptor = adb.DeviceWithSerial(opts.Serial)
	}
	dev := client.Device(descriptor)

	name := ""
	if out, err := dev.RunCommand("getprop", "ro.product.model"); err == nil {
		name = strings.TrimSpace(out)
	}

	serial := opts.Serial
	if serial == "" {
		if info, err := dev.DeviceInfo(); err == nil {
			serial = info.Serial
		}
	}

	sess := session.New(serial, name, dev)
	surface := &diskSurface{dir: opts.OutputDir}

	dispatcher := dispatch.New(surface, recorder.NewStreamRecorder(serial, config.GetRecordingsDir()))
	defer dispatcher.Close()
	dispatcher.SetSession(sess)

	var result error
	dispatcher.SetResultHook(func(action string, actionErr error) {
		result = actionErr
	})
	dispatcher.TakeScreenshot()

	if result != nil {
		return result
	}
	color.Green("Saved %s", surface.lastPath)
	return nil
}
