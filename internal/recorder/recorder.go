package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/droidglass/droidglass/internal/protocol"
	"github.com/droidglass/droidglass/internal/util"
)

// State is the payload pushed to subscribers on every recording state change.
type State struct {
	IsRecording bool   `json:"isRecording"`
	CurrentTime string `json:"currentTime"`
}

// Recorder owns start/stop of a local capture of the live video stream and
// exposes a push subscription for its state.
type Recorder interface {
	CanRecord() bool
	StartRecording() error
	StopRecording() error
	// OnStateChange registers a callback and returns the function that
	// removes it. A removed callback must never fire again.
	OnStateChange(fn func(State)) func()
}

// StreamRecorder sinks the raw scrcpy video stream to a file. It can record
// once stream metadata is known; until then CanRecord reports false.
type StreamRecorder struct {
	mu sync.Mutex

	dir    string
	serial string
	meta   *protocol.DeviceMeta

	file    *os.File
	started time.Time
	ticker  *time.Ticker
	done    chan struct{}

	nextSubID   int
	subscribers map[int]func(State)
}

// NewStreamRecorder creates a recorder writing into dir.
func NewStreamRecorder(serial, dir string) *StreamRecorder {
	return &StreamRecorder{
		dir:         dir,
		serial:      serial,
		subscribers: make(map[int]func(State)),
	}
}

// SetMeta stores the stream metadata. Recording is refused until this has
// been called, so a capture never starts before the stream is established.
func (r *StreamRecorder) SetMeta(meta *protocol.DeviceMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta = meta
}

// CanRecord reports whether stream metadata is available.
func (r *StreamRecorder) CanRecord() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta != nil
}

// StartRecording opens the output file and starts the elapsed-time ticker.
func (r *StreamRecorder) StartRecording() error {
	r.mu.Lock()

	if r.meta == nil {
		r.mu.Unlock()
		return errors.New("no stream metadata, cannot record")
	}
	if r.file != nil {
		r.mu.Unlock()
		return errors.New("recording already in progress")
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		r.mu.Unlock()
		return errors.Wrapf(err, "failed to create recordings dir %s", r.dir)
	}

	name := fmt.Sprintf("recording_%s_%s.h264", r.serial, time.Now().Format("20060102_150405"))
	file, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		r.mu.Unlock()
		return errors.Wrap(err, "failed to create recording file")
	}

	r.file = file
	r.started = time.Now()
	r.done = make(chan struct{})
	r.ticker = time.NewTicker(time.Second)

	go r.tickLoop(r.ticker, r.done)

	fns := r.subscriberList()
	r.mu.Unlock()

	util.GetLogger().Info("Recording started", "device", r.serial, "file", name)
	notify(fns, State{IsRecording: true, CurrentTime: formatDuration(0)})
	return nil
}

// StopRecording closes the output file and stops the ticker.
func (r *StreamRecorder) StopRecording() error {
	r.mu.Lock()

	if r.file == nil {
		r.mu.Unlock()
		return errors.New("no recording in progress")
	}

	r.ticker.Stop()
	close(r.done)
	err := r.file.Close()
	r.file = nil
	duration := time.Since(r.started).Round(time.Second)

	fns := r.subscriberList()
	r.mu.Unlock()

	util.GetLogger().Info("Recording stopped", "device", r.serial, "duration", duration)
	notify(fns, State{IsRecording: false, CurrentTime: ""})
	return errors.Wrap(err, "failed to close recording file")
}

// WritePacket appends one video packet payload to the recording, if one is
// in progress. The recording is a raw elementary stream.
func (r *StreamRecorder) WritePacket(pkt *protocol.VideoPacket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	_, err := r.file.Write(pkt.Data)
	return errors.Wrap(err, "failed to write recording packet")
}

// OnStateChange registers a state callback and returns its unsubscribe
// function.
func (r *StreamRecorder) OnStateChange(fn func(State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

func (r *StreamRecorder) tickLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.file == nil {
				r.mu.Unlock()
				return
			}
			elapsed := time.Since(r.started)
			fns := r.subscriberList()
			r.mu.Unlock()
			notify(fns, State{IsRecording: true, CurrentTime: formatDuration(elapsed)})
		}
	}
}

// subscriberList snapshots the subscriber set; callers notify after
// releasing the mutex so a callback can unsubscribe without deadlocking.
func (r *StreamRecorder) subscriberList() []func(State) {
	fns := make([]func(State), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st)
	}
}

// formatDuration renders an elapsed duration as MM:SS, or H:MM:SS past one
// hour.
func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
