package session

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	commands [][]string
	runErr   error

	streams  []*fakeStream
	openErr  error
	readData []byte
}

func (f *fakeTransport) RunCommand(cmd string, args ...string) (string, error) {
	f.commands = append(f.commands, append([]string{cmd}, args...))
	if f.runErr != nil {
		return "", f.runErr
	}
	return "", nil
}

func (f *fakeTransport) OpenRead(path string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	stream := &fakeStream{Reader: bytes.NewReader(f.readData)}
	f.streams = append(f.streams, stream)
	return stream, nil
}

type fakeStream struct {
	io.Reader
	closed int
}

func (f *fakeStream) Close() error {
	f.closed++
	return nil
}

func TestPowerButtonRunsKeyevent(t *testing.T) {
	transport := &fakeTransport{}
	sess := New("serial-1", "Pixel", transport)

	require.NoError(t, sess.PowerButton())
	require.Len(t, transport.commands, 1)
	assert.Equal(t, []string{"input", "keyevent", "26"}, transport.commands[0])
}

func TestSyncSessionDisposeClosesStreams(t *testing.T) {
	transport := &fakeTransport{readData: []byte("png")}
	sess := New("serial-1", "", transport)

	fs, err := sess.Sync()
	require.NoError(t, err)

	_, err = fs.Read("/tmp/screenshot.png")
	require.NoError(t, err)

	require.NoError(t, fs.Dispose())
	require.Len(t, transport.streams, 1)
	assert.Equal(t, 1, transport.streams[0].closed)

	// Dispose is idempotent and a disposed session refuses new reads.
	require.NoError(t, fs.Dispose())
	assert.Equal(t, 1, transport.streams[0].closed)

	_, err = fs.Read("/tmp/screenshot.png")
	assert.Error(t, err)
}

func TestControllerWritesSerializedMessages(t *testing.T) {
	var buf bytes.Buffer
	ctl := NewController()
	ctl.SetConn(&buf)

	require.NoError(t, ctl.RotateDevice())
	assert.Equal(t, []byte{11}, buf.Bytes(), "rotate is a bare type byte")

	buf.Reset()
	require.NoError(t, ctl.InjectKeycode(0, 24, 0, 0))
	require.Equal(t, 14, buf.Len())
	assert.Equal(t, byte(0), buf.Bytes()[0], "inject keycode type")
}

func TestControllerWithoutConn(t *testing.T) {
	ctl := NewController()
	err := ctl.ExpandNotificationPanel()
	assert.ErrorIs(t, err, ErrControlUnavailable)
}
