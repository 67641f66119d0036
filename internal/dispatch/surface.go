package dispatch

// Surface is the host UI runtime the dispatcher drives: the browser page
// showing the mirrored video. Implementations relay these primitives to the
// actual front end (the websocket server forwards them as outbound
// messages; the CLI screenshot command saves straight to disk).
type Surface interface {
	// RequestFullscreen asks the host to put the mirroring container into
	// fullscreen.
	RequestFullscreen() error

	// ExitFullscreen asks the host to leave fullscreen.
	ExitFullscreen() error

	// ResizeVideoToFill resizes the video surface to fill the container
	// height.
	ResizeVideoToFill()

	// FocusVideo moves input focus to the mirroring surface so subsequent
	// keyboard and synthetic input targets it.
	FocusVideo()

	// SaveArtifact hands a binary blob to the host's save-as-file
	// primitive under the suggested name.
	SaveArtifact(name, mimeType string, data []byte) error
}
