// Package state holds the client-side believed device state for one
// mirroring session. The values are optimistic: they are updated when a
// command is accepted locally, not when the device confirms anything, so
// they may diverge from the true device state.
package state

import "sync"

// Snapshot is a point-in-time copy of all believed facets.
type Snapshot struct {
	ScreenOn                  bool   `json:"screenOn"`
	NotificationPanelExpanded bool   `json:"notificationPanelExpanded"`
	Recording                 bool   `json:"recording"`
	RecordingTime             string `json:"recordingTime"`
	Fullscreen                bool   `json:"fullscreen"`
}

// Tracker tracks four independent believed facets. The dispatcher is the
// only writer, except for two push-driven facets: recording mirrors the
// recorder subscription, and fullscreen is corrected by the browser's
// fullscreen-change observation, which always wins over the dispatcher's
// optimistic flip.
type Tracker struct {
	mu sync.RWMutex

	screenOn                  bool
	notificationPanelExpanded bool
	recording                 bool
	recordingTime             string
	fullscreen                bool
}

// NewTracker returns a tracker with the initial beliefs: screen on,
// panel collapsed, not recording, not fullscreen.
func NewTracker() *Tracker {
	return &Tracker{screenOn: true}
}

func (t *Tracker) ScreenOn() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.screenOn
}

func (t *Tracker) SetScreenOn(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screenOn = on
}

func (t *Tracker) NotificationPanelExpanded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.notificationPanelExpanded
}

func (t *Tracker) SetNotificationPanelExpanded(expanded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notificationPanelExpanded = expanded
}

func (t *Tracker) Recording() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recording
}

// SetRecording mirrors the recorder's pushed state. The dispatcher never
// calls this directly.
func (t *Tracker) SetRecording(recording bool, currentTime string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recording = recording
	t.recordingTime = currentTime
}

func (t *Tracker) Fullscreen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fullscreen
}

func (t *Tracker) SetFullscreen(fullscreen bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fullscreen = fullscreen
}

// Get returns a copy of all facets.
func (t *Tracker) Get() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ScreenOn:                  t.screenOn,
		NotificationPanelExpanded: t.notificationPanelExpanded,
		Recording:                 t.recording,
		RecordingTime:             t.recordingTime,
		Fullscreen:                t.fullscreen,
	}
}
