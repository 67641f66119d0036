// Package devices tracks adb-visible devices and owns one session per
// online device.
package devices

import (
	"io"
	"net"
	"strings"
	"sync"

	adb "github.com/basiooo/goadb"
	"github.com/dchest/uniuri"
	"github.com/pkg/errors"
	"github.com/vishalkuo/bimap"
	"k8s.io/utils/keymutex"

	"github.com/droidglass/droidglass/internal/protocol"
	"github.com/droidglass/droidglass/internal/recorder"
	"github.com/droidglass/droidglass/internal/session"
	"github.com/droidglass/droidglass/internal/util"
)

const sessionIDLength = 12

// Keeper watches the local adb server and maintains a device session per
// online device. Sessions are addressable both by adb serial and by an
// opaque session id handed to browser clients.
type Keeper struct {
	adbClient     *adb.Adb
	deviceWatcher *adb.DeviceWatcher

	recordingsDir string

	mu         sync.RWMutex
	sessions   map[string]*session.Session
	recorders  map[string]*recorder.StreamRecorder
	idBySerial *bimap.BiMap[string, string]

	deviceLock keymutex.KeyMutex
}

// NewKeeper connects to the adb server on the given port.
func NewKeeper(adbPort int, recordingsDir string) (*Keeper, error) {
	adbClient, err := adb.NewWithConfig(adb.ServerConfig{
		Port: adbPort,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create adb client on port %d", adbPort)
	}
	return &Keeper{
		adbClient:     adbClient,
		recordingsDir: recordingsDir,
		sessions:      make(map[string]*session.Session),
		recorders:     make(map[string]*recorder.StreamRecorder),
		idBySerial:    bimap.NewBiMap[string, string](),
		deviceLock:    keymutex.NewHashed(1000),
	}, nil
}

// Start launches the adb server if needed and begins watching device
// events. Already-online devices get sessions immediately.
func (k *Keeper) Start() error {
	logger := util.GetLogger()

	if err := k.adbClient.StartServer(); err != nil {
		return errors.Wrap(err, "failed to start adb server")
	}

	devices, err := k.adbClient.ListDevices()
	if err != nil {
		return errors.Wrap(err, "failed to list devices")
	}
	for _, info := range devices {
		k.attach(info.Serial)
	}

	k.deviceWatcher = k.adbClient.NewDeviceWatcher()
	go func() {
		for event := range k.deviceWatcher.C() {
			logger.Info("Device event", "serial", event.Serial, "from", event.OldState, "to", event.NewState)
			switch event.NewState {
			case adb.StateOnline:
				k.attach(event.Serial)
			case adb.StateOffline:
				k.detach(event.Serial)
			}
		}
		if err := k.deviceWatcher.Err(); err != nil {
			logger.Error("Device watcher stopped", "error", err)
		}
	}()

	return nil
}

// Close shuts the device watcher down.
func (k *Keeper) Close() {
	if k.deviceWatcher != nil {
		k.deviceWatcher.Shutdown()
	}
}

func (k *Keeper) attach(serial string) {
	k.deviceLock.LockKey(serial)
	defer k.deviceLock.UnlockKey(serial)

	k.mu.RLock()
	_, exists := k.sessions[serial]
	k.mu.RUnlock()
	if exists {
		return
	}

	dev := k.adbClient.Device(adb.DeviceWithSerial(serial))
	name := deviceModel(dev)
	sess := session.New(serial, name, dev)
	rec := recorder.NewStreamRecorder(serial, k.recordingsDir)
	id := uniuri.NewLen(sessionIDLength)

	k.mu.Lock()
	k.sessions[serial] = sess
	k.recorders[serial] = rec
	k.idBySerial.Insert(serial, id)
	k.mu.Unlock()

	util.GetLogger().Info("Device session created", "serial", serial, "name", name, "session", id)
}

func (k *Keeper) detach(serial string) {
	k.deviceLock.LockKey(serial)
	defer k.deviceLock.UnlockKey(serial)

	k.mu.Lock()
	delete(k.sessions, serial)
	delete(k.recorders, serial)
	k.idBySerial.Delete(serial)
	k.mu.Unlock()

	util.GetLogger().Info("Device session removed", "serial", serial)
}

// deviceModel reads the device model over the shell; an empty name is fine,
// the screenshot pipeline falls back to a generic one.
func deviceModel(dev session.Transport) string {
	out, err := dev.RunCommand("getprop", "ro.product.model")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Session returns the session for an adb serial, or nil.
func (k *Keeper) Session(serial string) *session.Session {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.sessions[serial]
}

// SessionByID returns the session for an opaque session id, or nil.
func (k *Keeper) SessionByID(id string) *session.Session {
	k.mu.RLock()
	defer k.mu.RUnlock()

	serial, ok := k.idBySerial.GetInverse(id)
	if !ok {
		return nil
	}
	return k.sessions[serial]
}

// Recorder returns the recorder for an adb serial, or nil.
func (k *Keeper) Recorder(serial string) *recorder.StreamRecorder {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.recorders[serial]
}

// SessionID returns the opaque id for a serial, or an empty string.
func (k *Keeper) SessionID(serial string) string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	id, ok := k.idBySerial.Get(serial)
	if !ok {
		return ""
	}
	return id
}

// Serials returns the serials of all devices with live sessions.
func (k *Keeper) Serials() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	serials := make([]string, 0, len(k.sessions))
	for serial := range k.sessions {
		serials = append(serials, serial)
	}
	return serials
}

// ConnectStreams dials a locally forwarded scrcpy endpoint and attaches the
// resulting socket pair to the device session. The scrcpy server accepts the
// video socket first and the control socket second, so the dials happen in
// that order.
func (k *Keeper) ConnectStreams(serial, addr string) error {
	k.mu.RLock()
	_, ok := k.sessions[serial]
	k.mu.RUnlock()
	if !ok {
		return errors.Errorf("no session for device %s", serial)
	}

	video, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to dial video socket at %s", addr)
	}
	control, err := net.Dial("tcp", addr)
	if err != nil {
		video.Close()
		return errors.Wrapf(err, "failed to dial control socket at %s", addr)
	}

	if err := k.AttachStreams(serial, video, control); err != nil {
		video.Close()
		control.Close()
		return err
	}
	return nil
}

// AttachStreams wires the scrcpy sockets for a device into its session and
// recorder: control messages go out on control, and the video stream is
// demuxed into the recorder until it ends. The scrcpy server bootstrap
// itself lives outside this package.
func (k *Keeper) AttachStreams(serial string, video io.Reader, control io.Writer) error {
	k.mu.RLock()
	sess := k.sessions[serial]
	rec := k.recorders[serial]
	k.mu.RUnlock()

	if sess == nil || rec == nil {
		return errors.Errorf("no session for device %s", serial)
	}

	sess.AttachControl(control)

	meta, err := protocol.ReadDeviceMeta(video)
	if err != nil {
		return errors.Wrap(err, "failed to read device metadata")
	}
	if meta.DeviceName != "" {
		sess.SetName(meta.DeviceName)
	}
	rec.SetMeta(meta)

	go func() {
		logger := util.GetLogger()
		for {
			pkt, err := protocol.ReadVideoPacket(video)
			if err != nil {
				logger.Debug("Video stream ended", "serial", serial, "error", err)
				return
			}
			if err := rec.WritePacket(pkt); err != nil {
				logger.Warn("Failed to sink video packet", "serial", serial, "error", err)
			}
		}
	}()

	return nil
}
