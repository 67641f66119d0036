package dispatch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidglass/droidglass/internal/protocol"
	"github.com/droidglass/droidglass/internal/recorder"
	"github.com/droidglass/droidglass/internal/session"
)

// fakeController records every control call in order and can be told to
// reject specific calls.
type fakeController struct {
	calls   []string
	failOn  string
	failErr error
}

func (f *fakeController) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.HasPrefix(call, f.failOn) {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("rejected: " + call)
	}
	return nil
}

func (f *fakeController) SetScreenPowerMode(mode protocol.ScreenPowerMode) error {
	return f.record(fmt.Sprintf("power-mode %d", mode))
}

func (f *fakeController) InjectKeycode(action protocol.KeyEventAction, keycode, repeat, metaState int) error {
	return f.record(fmt.Sprintf("keycode %d %d %d %d", action, keycode, repeat, metaState))
}

func (f *fakeController) RotateDevice() error { return f.record("rotate") }

func (f *fakeController) ExpandNotificationPanel() error { return f.record("expand") }

func (f *fakeController) CollapsePanels() error { return f.record("collapse") }

func (f *fakeController) ResetVideo() error { return f.record("reset-video") }

func (f *fakeController) BackOrScreenOn(action protocol.KeyEventAction) error {
	return f.record(fmt.Sprintf("back %d", action))
}

type fakeSession struct {
	name     string
	serial   string
	ctl      *fakeController
	commands [][]string
}

func (f *fakeSession) Name() string { return f.name }

func (f *fakeSession) Serial() string { return f.serial }

func (f *fakeSession) PowerButton() error {
	f.commands = append(f.commands, []string{"input", "keyevent", "26"})
	return nil
}

func (f *fakeSession) RunCommand(cmd string, args ...string) (string, error) {
	f.commands = append(f.commands, append([]string{cmd}, args...))
	return "", nil
}

func (f *fakeSession) Sync() (session.FileSync, error) {
	return nil, errors.New("sync not supported in this fake")
}

func (f *fakeSession) Controller() session.ControlSender { return f.ctl }

type fakeSurface struct {
	fullscreenRequests int
	fullscreenExits    int
	resizes            int
	focuses            int
	saved              []string
	savedData          [][]byte
	saveErr            error
	fullscreenErr      error
}

func (f *fakeSurface) RequestFullscreen() error {
	f.fullscreenRequests++
	return f.fullscreenErr
}

func (f *fakeSurface) ExitFullscreen() error {
	f.fullscreenExits++
	return f.fullscreenErr
}

func (f *fakeSurface) ResizeVideoToFill() { f.resizes++ }

func (f *fakeSurface) FocusVideo() { f.focuses++ }

func (f *fakeSurface) SaveArtifact(name, mimeType string, data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, name)
	f.savedData = append(f.savedData, data)
	return nil
}

// fakeRecorder pushes state changes synchronously, like the real recorder.
type fakeRecorder struct {
	canRecord bool
	startErr  error
	starts    int
	stops     int

	nextID      int
	subscribers map[int]func(recorder.State)
}

func newFakeRecorder(canRecord bool) *fakeRecorder {
	return &fakeRecorder{
		canRecord:   canRecord,
		subscribers: make(map[int]func(recorder.State)),
	}
}

func (f *fakeRecorder) CanRecord() bool { return f.canRecord }

func (f *fakeRecorder) StartRecording() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.push(recorder.State{IsRecording: true, CurrentTime: "00:00"})
	return nil
}

func (f *fakeRecorder) StopRecording() error {
	f.stops++
	f.push(recorder.State{IsRecording: false})
	return nil
}

func (f *fakeRecorder) OnStateChange(fn func(recorder.State)) func() {
	id := f.nextID
	f.nextID++
	f.subscribers[id] = fn
	return func() { delete(f.subscribers, id) }
}

func (f *fakeRecorder) push(st recorder.State) {
	for _, fn := range f.subscribers {
		fn(st)
	}
}

func newTestDispatcher(sess *fakeSession) (*Dispatcher, *fakeSurface, *fakeRecorder) {
	surface := &fakeSurface{}
	rec := newFakeRecorder(true)
	d := New(surface, rec)
	if sess != nil {
		d.SetSession(sess)
	}
	return d, surface, rec
}

func press() *PointerEvent {
	return &PointerEvent{Button: PrimaryButton, Phase: PointerPress}
}

func release() *PointerEvent {
	return &PointerEvent{Button: PrimaryButton, Phase: PointerRelease}
}

func TestToggleScreenPowerFlipsBelief(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.ToggleScreenPower()
	assert.False(t, d.State().ScreenOn())

	d.ToggleScreenPower()
	assert.True(t, d.State().ScreenOn(), "second toggle returns to the original value")

	require.Equal(t, []string{
		fmt.Sprintf("power-mode %d", protocol.ScreenPowerModeOff),
		fmt.Sprintf("power-mode %d", protocol.ScreenPowerModeNormal),
	}, sess.ctl.calls, "exactly one Off then one Normal")
}

func TestRejectedCommandLeavesBeliefUnchanged(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{failOn: "power-mode"}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.ToggleScreenPower()
	assert.True(t, d.State().ScreenOn(), "belief keeps prior value on rejection")

	sess.ctl.failOn = "expand"
	d.ToggleNotificationPanel()
	assert.False(t, d.State().NotificationPanelExpanded())
}

func TestToggleNotificationPanel(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.ToggleNotificationPanel()
	assert.True(t, d.State().NotificationPanelExpanded())

	d.ToggleNotificationPanel()
	assert.False(t, d.State().NotificationPanelExpanded())

	assert.Equal(t, []string{"expand", "collapse"}, sess.ctl.calls)
}

func TestVolumeKeysPressBeforeRelease(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.VolumeUp()
	d.VolumeDown()

	require.Equal(t, []string{
		"keycode 0 24 0 0",
		"keycode 1 24 0 0",
		"keycode 0 25 0 0",
		"keycode 1 25 0 0",
	}, sess.ctl.calls, "down strictly before up, repeat=0 metaState=0")
}

func TestVolumeUpAbortsWhenDownRejected(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{failOn: "keycode 0"}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.VolumeUp()
	require.Equal(t, []string{"keycode 0 24 0 0"}, sess.ctl.calls, "no key-up after a rejected key-down")
}

func TestActionsWithoutSessionAreNoOps(t *testing.T) {
	d, surface, rec := newTestDispatcher(nil)
	defer d.Close()

	d.ToggleScreenPower()
	d.ToggleNotificationPanel()
	d.VolumeUp()
	d.RotateDevice()
	d.PowerButton()
	d.Back(press())
	d.Home(press())
	d.AppSwitch(press())
	d.TakeScreenshot()

	assert.True(t, d.State().ScreenOn())
	assert.False(t, d.State().NotificationPanelExpanded())
	assert.Zero(t, surface.focuses)
	assert.Zero(t, rec.starts)
}

func TestNavigationKeyPressAndRelease(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, surface, _ := newTestDispatcher(sess)
	defer d.Close()

	down := press()
	d.Home(down)
	assert.True(t, down.DefaultPrevented, "accepted press is default-prevented")
	assert.True(t, down.PropagationStopped)
	assert.Equal(t, 1, surface.focuses, "accepted press focuses the video surface")

	up := release()
	d.Home(up)
	assert.False(t, up.DefaultPrevented, "release is not consumed")
	assert.Equal(t, 1, surface.focuses, "release does not re-focus")

	require.Equal(t, []string{"keycode 0 3 0 0", "keycode 1 3 0 0"}, sess.ctl.calls)
}

func TestNavigationKeyIgnoresSecondaryButton(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, surface, _ := newTestDispatcher(sess)
	defer d.Close()

	d.Back(&PointerEvent{Button: 2, Phase: PointerPress})

	assert.Empty(t, sess.ctl.calls)
	assert.Zero(t, surface.focuses)
}

func TestBackUsesBackOrScreenOn(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.Back(press())
	d.Back(release())

	require.Equal(t, []string{"back 0", "back 1"}, sess.ctl.calls)
}

func TestAppSwitchKeycode(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.AppSwitch(press())
	require.Equal(t, []string{"keycode 0 187 0 0"}, sess.ctl.calls)
}

func TestRotateAndPowerButton(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.RotateDevice()
	assert.Equal(t, []string{"rotate"}, sess.ctl.calls)

	d.PowerButton()
	require.Len(t, sess.commands, 1)
	assert.Equal(t, []string{"input", "keyevent", "26"}, sess.commands[0])
}

func TestToggleFullscreen(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, surface, _ := newTestDispatcher(sess)
	defer d.Close()

	d.ToggleFullscreen()
	assert.Equal(t, 1, surface.fullscreenRequests)
	assert.Equal(t, 1, surface.resizes, "entering fullscreen resizes the video")
	assert.True(t, d.State().Fullscreen())

	d.ToggleFullscreen()
	assert.Equal(t, 1, surface.fullscreenExits)
	assert.Equal(t, 2, surface.resizes, "leaving fullscreen resizes the video back")
	assert.False(t, d.State().Fullscreen())
}

func TestSyncFullscreenWinsOverBelief(t *testing.T) {
	d, _, _ := newTestDispatcher(nil)
	defer d.Close()

	d.ToggleFullscreen()
	require.True(t, d.State().Fullscreen())

	// The user pressed Escape; the browser observation corrects the belief.
	d.SyncFullscreen(false)
	assert.False(t, d.State().Fullscreen())
}

func TestToggleRecordingRequiresRecordableStream(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, rec := newTestDispatcher(sess)
	defer d.Close()
	rec.canRecord = false

	d.ToggleRecording()

	assert.Zero(t, rec.starts, "start is not requested without stream metadata")
	assert.False(t, d.State().Recording())
}

func TestToggleRecordingStartsThenResetsVideo(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, surface, rec := newTestDispatcher(sess)
	defer d.Close()

	d.ToggleRecording()

	assert.Equal(t, 1, rec.starts)
	assert.Equal(t, 1, surface.focuses, "focus moves to the surface before the transition")
	require.Equal(t, []string{"reset-video"}, sess.ctl.calls, "successful start is followed by a video reset")
	assert.True(t, d.State().Recording(), "facet mirrors the recorder push")

	d.ToggleRecording()
	assert.Equal(t, 1, rec.stops)
	assert.False(t, d.State().Recording())
}

func TestRecordingFacetNotSetWhenStartFails(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, rec := newTestDispatcher(sess)
	defer d.Close()
	rec.startErr = errors.New("encoder busy")

	d.ToggleRecording()

	assert.False(t, d.State().Recording())
	assert.Empty(t, sess.ctl.calls, "no video reset without a successful start")
}

func TestCloseStopsRecorderMirroring(t *testing.T) {
	d, _, rec := newTestDispatcher(nil)

	d.Close()
	rec.push(recorder.State{IsRecording: true, CurrentTime: "01:00"})

	assert.False(t, d.State().Recording(), "a late notification must not mutate a torn-down component")
}

func TestExecuteRoutesActions(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	d.Execute(ActionVolumeUp, nil)
	d.Execute(ActionRotate, nil)
	d.Execute(ActionHome, press())
	d.Execute("bogus", nil)

	require.Equal(t, []string{
		"keycode 0 24 0 0",
		"keycode 1 24 0 0",
		"rotate",
		"keycode 0 3 0 0",
	}, sess.ctl.calls)
}

func TestResultHookSeesOutcomes(t *testing.T) {
	sess := &fakeSession{ctl: &fakeController{failOn: "rotate"}}
	d, _, _ := newTestDispatcher(sess)
	defer d.Close()

	var gotAction string
	var gotErr error
	d.SetResultHook(func(action string, err error) {
		gotAction = action
		gotErr = err
	})

	d.RotateDevice()
	assert.Equal(t, ActionRotate, gotAction)
	assert.Error(t, gotErr)

	gotAction = ""
	d.SetSession(nil)
	d.RotateDevice()
	assert.Empty(t, gotAction, "benign skips are not reported")
}
