package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/droidglass/droidglass/internal/session"
)

// RemoteScreenshotPath is the fixed temporary path screencap writes to on
// the device.
const RemoteScreenshotPath = "/tmp/screenshot.png"

const screenshotMimeType = "image/png"

// TakeScreenshot runs the one-shot capture workflow: remote screencap,
// chunked pull over a scoped sync session, in-memory assembly, save-as-file
// hand-off. The remote temporary file is deleted and the sync session
// disposed on every exit path.
func (d *Dispatcher) TakeScreenshot() {
	d.run(ActionScreenshot, d.takeScreenshot)
}

func (d *Dispatcher) takeScreenshot() error {
	sess, err := d.requireSession()
	if err != nil {
		return err
	}

	name := ScreenshotFileName(sess.Name(), time.Now())

	var syncSess session.FileSync
	defer func() {
		// Cleanup must not mask the primary outcome: dispose and delete
		// failures are logged only.
		if syncSess != nil {
			if err := syncSess.Dispose(); err != nil {
				d.log.Warn("Failed to dispose sync session", "error", err)
			}
		}
		if _, err := sess.RunCommand("rm", RemoteScreenshotPath); err != nil {
			d.log.Warn("Failed to delete remote screenshot", "path", RemoteScreenshotPath, "error", err)
		}
	}()

	if _, err := sess.RunCommand("screencap", "-p", RemoteScreenshotPath); err != nil {
		return errors.Wrap(err, "remote capture failed")
	}

	fileSync, err := sess.Sync()
	if err != nil {
		return errors.Wrap(err, "failed to open sync session")
	}
	syncSess = fileSync

	stream, err := fileSync.Read(RemoteScreenshotPath)
	if err != nil {
		return errors.Wrap(err, "failed to open screenshot stream")
	}

	data, err := readAllChunks(stream)
	if err != nil {
		return errors.Wrap(err, "failed to read screenshot stream")
	}

	if err := d.surface.SaveArtifact(name, screenshotMimeType, data); err != nil {
		return errors.Wrap(err, "failed to save screenshot")
	}

	d.log.Info("Screenshot saved", "device", sess.Serial(), "file", name, "bytes", len(data))
	return nil
}

// readAllChunks pulls chunks until the stream signals completion,
// accumulating them in order.
func readAllChunks(stream io.Reader) ([]byte, error) {
	var assembled bytes.Buffer
	chunk := make([]byte, 64*1024)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			assembled.Write(chunk[:n])
		}
		if err == io.EOF {
			return assembled.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// ScreenshotFileName computes the destination file name from the device
// name and a timestamp. Every character outside [A-Za-z0-9-_] is replaced
// with an underscore; an unknown device name falls back to "device".
func ScreenshotFileName(deviceName string, t time.Time) string {
	return fmt.Sprintf("screenshot_%s_%s.png", sanitizeDeviceName(deviceName), t.Format("20060102_150405"))
}

func sanitizeDeviceName(name string) string {
	if name == "" {
		return "device"
	}
	sanitized := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '_')
		}
	}
	return string(sanitized)
}
