package session

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/droidglass/droidglass/internal/protocol"
	"github.com/droidglass/droidglass/internal/util"
)

// ErrControlUnavailable is returned when no control socket is attached yet,
// or the scrcpy server dropped it.
var ErrControlUnavailable = errors.New("control connection not available")

// ControlSender is the structured-input surface of a device session. Each
// call serializes one scrcpy control message and writes it to the control
// socket.
type ControlSender interface {
	SetScreenPowerMode(mode protocol.ScreenPowerMode) error
	InjectKeycode(action protocol.KeyEventAction, keycode, repeat, metaState int) error
	RotateDevice() error
	ExpandNotificationPanel() error
	CollapsePanels() error
	BackOrScreenOn(action protocol.KeyEventAction) error
	ResetVideo() error
}

// Controller writes scrcpy control messages to the device's control socket.
// The socket is attached after the scrcpy handshake completes and may be
// swapped when the server reconnects.
type Controller struct {
	mu   sync.Mutex
	conn io.Writer
}

// NewController creates a controller with no control socket attached.
func NewController() *Controller {
	return &Controller{}
}

// SetConn attaches (or replaces) the control socket.
func (c *Controller) SetConn(conn io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Controller) send(msgType uint8, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrControlUnavailable
	}

	buf := protocol.Serialize(&protocol.ControlMessage{Type: msgType, Data: data})
	if _, err := c.conn.Write(buf); err != nil {
		return errors.Wrapf(err, "failed to write control message type %d", msgType)
	}
	util.GetLogger().Debug("Control message sent", "type", msgType, "bytes", len(buf))
	return nil
}

func (c *Controller) SetScreenPowerMode(mode protocol.ScreenPowerMode) error {
	return c.send(protocol.ControlMsgTypeSetDisplayPower, protocol.EncodeSetDisplayPower(mode))
}

func (c *Controller) InjectKeycode(action protocol.KeyEventAction, keycode, repeat, metaState int) error {
	return c.send(protocol.ControlMsgTypeInjectKeycode, protocol.EncodeKeyEvent(action, keycode, repeat, metaState))
}

func (c *Controller) RotateDevice() error {
	return c.send(protocol.ControlMsgTypeRotateDevice, nil)
}

func (c *Controller) ExpandNotificationPanel() error {
	return c.send(protocol.ControlMsgTypeExpandNotification, nil)
}

func (c *Controller) CollapsePanels() error {
	return c.send(protocol.ControlMsgTypeCollapsePanels, nil)
}

func (c *Controller) BackOrScreenOn(action protocol.KeyEventAction) error {
	return c.send(protocol.ControlMsgTypeBackOrScreenOn, protocol.EncodeBackOrScreenOn(action))
}

func (c *Controller) ResetVideo() error {
	return c.send(protocol.ControlMsgTypeResetVideo, nil)
}
