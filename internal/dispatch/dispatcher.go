// Package dispatch maps control-bar gestures to sequences of device
// protocol calls and tracks the believed device state that results. It is
// the single writer of the believed state, except for the push-driven
// recording and fullscreen facets.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/droidglass/droidglass/internal/protocol"
	"github.com/droidglass/droidglass/internal/recorder"
	"github.com/droidglass/droidglass/internal/session"
	"github.com/droidglass/droidglass/internal/state"
	"github.com/droidglass/droidglass/internal/util"
)

// Control-bar action names, as carried in websocket messages.
const (
	ActionScreenshot        = "screenshot"
	ActionRecord            = "record"
	ActionFullscreen        = "fullscreen"
	ActionScreenPower       = "screen-power"
	ActionNotificationPanel = "notifications"
	ActionVolumeUp          = "volume-up"
	ActionVolumeDown        = "volume-down"
	ActionRotate            = "rotate"
	ActionPower             = "power"
	ActionBack              = "back"
	ActionHome              = "home"
	ActionAppSwitch         = "app-switch"
)

// errSkip marks benign precondition failures (no session, wrong pointer
// button, stream not recordable). They are ignored, not reported as errors.
var errSkip = errors.New("precondition not met")

func skip(reason string) error {
	return fmt.Errorf("%s: %w", reason, errSkip)
}

// DeviceSession is the session capability the dispatcher consumes. It is
// satisfied by *session.Session and faked in tests. The dispatcher holds a
// non-owning reference and tolerates it being absent.
type DeviceSession interface {
	Name() string
	Serial() string
	PowerButton() error
	RunCommand(cmd string, args ...string) (string, error)
	Sync() (session.FileSync, error)
	Controller() session.ControlSender
}

// Dispatcher executes control-bar actions against the current device
// session. Every action is a terminal error boundary: failures are logged
// and never propagate to the caller.
type Dispatcher struct {
	state   *state.Tracker
	surface Surface
	rec     recorder.Recorder
	log     *slog.Logger

	mu          sync.RWMutex
	session     DeviceSession
	closed      bool
	unsubscribe func()

	resultHook func(action string, err error)
}

// New creates a dispatcher and subscribes to the recorder's state changes,
// which drive the recording facet. Close must be called at teardown to
// release the subscription.
func New(surface Surface, rec recorder.Recorder) *Dispatcher {
	d := &Dispatcher{
		state:   state.NewTracker(),
		surface: surface,
		rec:     rec,
		log:     util.GetLogger(),
	}
	d.unsubscribe = rec.OnStateChange(func(st recorder.State) {
		d.mu.RLock()
		closed := d.closed
		d.mu.RUnlock()
		if closed {
			return
		}
		d.state.SetRecording(st.IsRecording, st.CurrentTime)
	})
	return d
}

// Close unsubscribes from the recorder. A notification arriving after Close
// no longer mutates the believed state.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	unsub := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// SetSession attaches the current device session. A nil session makes every
// session-dependent action a no-op.
func (d *Dispatcher) SetSession(sess DeviceSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = sess
}

// State exposes the believed device state for the UI to reflect.
func (d *Dispatcher) State() *state.Tracker {
	return d.state
}

// SetResultHook installs a callback invoked with the outcome of every
// non-skipped action, used for the history store.
func (d *Dispatcher) SetResultHook(fn func(action string, err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resultHook = fn
}

// Execute dispatches an action by name. Unknown actions are logged and
// dropped.
func (d *Dispatcher) Execute(action string, ev *PointerEvent) {
	switch action {
	case ActionScreenshot:
		d.TakeScreenshot()
	case ActionRecord:
		d.ToggleRecording()
	case ActionFullscreen:
		d.ToggleFullscreen()
	case ActionScreenPower:
		d.ToggleScreenPower()
	case ActionNotificationPanel:
		d.ToggleNotificationPanel()
	case ActionVolumeUp:
		d.VolumeUp()
	case ActionVolumeDown:
		d.VolumeDown()
	case ActionRotate:
		d.RotateDevice()
	case ActionPower:
		d.PowerButton()
	case ActionBack:
		d.Back(ev)
	case ActionHome:
		d.Home(ev)
	case ActionAppSwitch:
		d.AppSwitch(ev)
	default:
		d.log.Warn("Unknown control action", "action", action)
	}
}

// run is the terminal error boundary shared by all actions.
func (d *Dispatcher) run(action string, fn func() error) {
	err := fn()
	if err != nil && errors.Is(err, errSkip) {
		d.log.Debug("Action skipped", "action", action, "reason", err)
		return
	}

	if err != nil {
		d.log.Error("Action failed", "action", action, "error", err)
	} else {
		d.log.Debug("Action dispatched", "action", action)
	}

	d.mu.RLock()
	hook := d.resultHook
	d.mu.RUnlock()
	if hook != nil {
		hook(action, err)
	}
}

func (d *Dispatcher) currentSession() DeviceSession {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

func (d *Dispatcher) requireSession() (DeviceSession, error) {
	if sess := d.currentSession(); sess != nil {
		return sess, nil
	}
	return nil, skip("no device session")
}

// ToggleScreenPower turns the device screen off or back on, based on the
// believed screen state. The belief flips only after the command succeeds.
func (d *Dispatcher) ToggleScreenPower() {
	d.run(ActionScreenPower, func() error {
		sess, err := d.requireSession()
		if err != nil {
			return err
		}

		mode := protocol.ScreenPowerModeOff
		if !d.state.ScreenOn() {
			mode = protocol.ScreenPowerModeNormal
		}
		if err := sess.Controller().SetScreenPowerMode(mode); err != nil {
			return err
		}
		d.state.SetScreenOn(mode == protocol.ScreenPowerModeNormal)
		return nil
	})
}

// ToggleNotificationPanel expands or collapses the notification panel,
// based on the believed panel state.
func (d *Dispatcher) ToggleNotificationPanel() {
	d.run(ActionNotificationPanel, func() error {
		sess, err := d.requireSession()
		if err != nil {
			return err
		}

		ctl := sess.Controller()
		if d.state.NotificationPanelExpanded() {
			if err := ctl.CollapsePanels(); err != nil {
				return err
			}
			d.state.SetNotificationPanelExpanded(false)
		} else {
			if err := ctl.ExpandNotificationPanel(); err != nil {
				return err
			}
			d.state.SetNotificationPanelExpanded(true)
		}
		return nil
	})
}

// ToggleFullscreen requests or exits fullscreen on the host surface. The
// flip here is provisional; SyncFullscreen carries the authoritative value
// from the browser.
func (d *Dispatcher) ToggleFullscreen() {
	d.run(ActionFullscreen, func() error {
		if d.state.Fullscreen() {
			if err := d.surface.ExitFullscreen(); err != nil {
				return err
			}
			d.surface.ResizeVideoToFill()
			d.state.SetFullscreen(false)
		} else {
			if err := d.surface.RequestFullscreen(); err != nil {
				return err
			}
			d.surface.ResizeVideoToFill()
			d.state.SetFullscreen(true)
		}
		return nil
	})
}

// SyncFullscreen resynchronizes the fullscreen facet from the browser's
// fullscreen-change observation. This covers exits the dispatcher did not
// initiate, such as the user pressing Escape, and always wins over the
// dispatcher's own flip.
func (d *Dispatcher) SyncFullscreen(active bool) {
	d.state.SetFullscreen(active)
	d.log.Debug("Fullscreen state synced from browser", "active", active)
}

// VolumeUp presses and releases the volume-up key.
func (d *Dispatcher) VolumeUp() {
	d.run(ActionVolumeUp, func() error {
		return d.pressAndReleaseKey(protocol.KeycodeVolumeUp)
	})
}

// VolumeDown presses and releases the volume-down key.
func (d *Dispatcher) VolumeDown() {
	d.run(ActionVolumeDown, func() error {
		return d.pressAndReleaseKey(protocol.KeycodeVolumeDown)
	})
}

// pressAndReleaseKey injects key-down strictly before key-up, with zero
// repeat and meta state.
func (d *Dispatcher) pressAndReleaseKey(keycode int) error {
	sess, err := d.requireSession()
	if err != nil {
		return err
	}

	ctl := sess.Controller()
	if err := ctl.InjectKeycode(protocol.KeyActionDown, keycode, 0, 0); err != nil {
		return err
	}
	return ctl.InjectKeycode(protocol.KeyActionUp, keycode, 0, 0)
}

// RotateDevice rotates the device display.
func (d *Dispatcher) RotateDevice() {
	d.run(ActionRotate, func() error {
		sess, err := d.requireSession()
		if err != nil {
			return err
		}
		return sess.Controller().RotateDevice()
	})
}

// PowerButton presses the device power button.
func (d *Dispatcher) PowerButton() {
	d.run(ActionPower, func() error {
		sess, err := d.requireSession()
		if err != nil {
			return err
		}
		return sess.PowerButton()
	})
}

// Back sends back-or-screen-on for a press or release of the back key.
func (d *Dispatcher) Back(ev *PointerEvent) {
	d.run(ActionBack, func() error {
		return d.navKey(ev, func(ctl session.ControlSender, action protocol.KeyEventAction) error {
			return ctl.BackOrScreenOn(action)
		})
	})
}

// Home sends the Android home key for a press or release.
func (d *Dispatcher) Home(ev *PointerEvent) {
	d.run(ActionHome, func() error {
		return d.navKey(ev, func(ctl session.ControlSender, action protocol.KeyEventAction) error {
			return ctl.InjectKeycode(action, protocol.KeycodeHome, 0, 0)
		})
	})
}

// AppSwitch sends the Android app-switch key for a press or release.
func (d *Dispatcher) AppSwitch(ev *PointerEvent) {
	d.run(ActionAppSwitch, func() error {
		return d.navKey(ev, func(ctl session.ControlSender, action protocol.KeyEventAction) error {
			return ctl.InjectKeycode(action, protocol.KeycodeAppSwitch, 0, 0)
		})
	})
}

// navKey applies the shared preconditions for held navigation keys: a
// session must exist and the gesture must come from the primary button. An
// accepted press consumes the pointer event and focuses the video surface;
// the release is an independent call, not a cancellation of the press.
func (d *Dispatcher) navKey(ev *PointerEvent, send func(session.ControlSender, protocol.KeyEventAction) error) error {
	sess, err := d.requireSession()
	if err != nil {
		return err
	}
	if ev == nil {
		return skip("no pointer event")
	}
	if ev.Button != PrimaryButton {
		return skip("not the primary pointer button")
	}

	action := protocol.KeyActionDown
	if ev.Phase == PointerRelease {
		action = protocol.KeyActionUp
	} else {
		ev.consume()
		d.surface.FocusVideo()
	}
	return send(sess.Controller(), action)
}

// ToggleRecording requests a recorder transition. The recording facet is
// never set here; it mirrors the recorder's push notifications.
func (d *Dispatcher) ToggleRecording() {
	d.run(ActionRecord, func() error {
		d.surface.FocusVideo()

		if d.state.Recording() {
			return d.rec.StopRecording()
		}

		if !d.rec.CanRecord() {
			return skip("stream not ready for recording")
		}
		if err := d.rec.StartRecording(); err != nil {
			return err
		}

		// Restart the stream so the capture begins at a keyframe.
		if sess := d.currentSession(); sess != nil {
			if err := sess.Controller().ResetVideo(); err != nil {
				d.log.Warn("Failed to reset video after starting recording", "error", err)
			}
		}
		return nil
	})
}
