package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/droidglass/droidglass/internal/protocol"
)

// Transport is the adb-level capability a session is built on. goadb's
// *adb.Device satisfies it: RunCommand goes over the shell service, OpenRead
// over the sync service.
type Transport interface {
	RunCommand(cmd string, args ...string) (string, error)
	OpenRead(path string) (io.ReadCloser, error)
}

// FileSync is a scoped file-synchronization session. Read opens a chunked
// stream for a remote path; Dispose must be called on every exit path.
type FileSync interface {
	Read(path string) (io.ReadCloser, error)
	Dispose() error
}

// Session is one live connection to a remote device. It bundles raw command
// execution, file sync and the structured-input controller.
type Session struct {
	serial     string
	name       string
	transport  Transport
	controller *Controller
}

// New creates a session for a device identified by serial. The control
// socket is attached later via Controller().SetConn once the scrcpy
// handshake completes.
func New(serial, name string, transport Transport) *Session {
	return &Session{
		serial:     serial,
		name:       name,
		transport:  transport,
		controller: NewController(),
	}
}

// Serial returns the adb serial of the device.
func (s *Session) Serial() string {
	return s.serial
}

// Name returns the human-readable device name, which may be empty.
func (s *Session) Name() string {
	return s.name
}

// SetName updates the device name, typically from scrcpy device metadata.
func (s *Session) SetName(name string) {
	s.name = name
}

// Controller returns the structured-input controller for the session.
func (s *Session) Controller() ControlSender {
	return s.controller
}

// AttachControl attaches the scrcpy control socket to the controller.
func (s *Session) AttachControl(conn io.Writer) {
	s.controller.SetConn(conn)
}

// RunCommand executes a remote shell command and waits for it to finish.
func (s *Session) RunCommand(cmd string, args ...string) (string, error) {
	out, err := s.transport.RunCommand(cmd, args...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to run %q on device %s", strings.Join(append([]string{cmd}, args...), " "), s.serial)
	}
	return out, nil
}

// PowerButton presses and releases the device power button through the
// shell input path.
func (s *Session) PowerButton() error {
	_, err := s.RunCommand("input", "keyevent", fmt.Sprintf("%d", protocol.KeycodePower))
	return err
}

// Sync opens a file-synchronization session. The caller owns it for the
// duration of one operation and must Dispose it.
func (s *Session) Sync() (FileSync, error) {
	return &syncSession{transport: s.transport}, nil
}

// syncSession tracks streams opened through one Sync() scope so Dispose can
// release whatever is still open.
type syncSession struct {
	transport Transport
	streams   []io.ReadCloser
	disposed  bool
}

func (ss *syncSession) Read(path string) (io.ReadCloser, error) {
	if ss.disposed {
		return nil, errors.New("sync session already disposed")
	}
	rc, err := ss.transport.OpenRead(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sync read for %s", path)
	}
	ss.streams = append(ss.streams, rc)
	return rc, nil
}

func (ss *syncSession) Dispose() error {
	if ss.disposed {
		return nil
	}
	ss.disposed = true

	var firstErr error
	for _, rc := range ss.streams {
		if err := rc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ss.streams = nil
	return firstErr
}
