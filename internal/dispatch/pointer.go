package dispatch

// PointerPhase distinguishes press from release for held navigation keys.
type PointerPhase int

const (
	PointerPress PointerPhase = iota
	PointerRelease
)

// PrimaryButton is the button value of the primary pointer button, matching
// the browser MouseEvent convention.
const PrimaryButton = 0

// PointerEvent carries the originating pointer gesture for press/release
// driven actions. DefaultPrevented and PropagationStopped are set by the
// dispatcher when it accepts a press, so the browser side can suppress its
// own handling.
type PointerEvent struct {
	Button int
	Phase  PointerPhase

	DefaultPrevented   bool
	PropagationStopped bool
}

func (e *PointerEvent) consume() {
	e.DefaultPrevented = true
	e.PropagationStopped = true
}
