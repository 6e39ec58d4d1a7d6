package input

import (
	"fmt"
	"strings"

	"github.com/pepegar/tui-wright/internal/protocol"
)

// MouseAction is a canonicalized mouse event kind.
type MouseAction int

const (
	MousePress MouseAction = iota
	MouseRelease
	MouseMove
	MouseScrollUp
	MouseScrollDown
)

// ParseMouseAction canonicalizes a case-insensitive action name.
func ParseMouseAction(action string) (MouseAction, error) {
	switch strings.ToLower(action) {
	case "press", "click":
		return MousePress, nil
	case "release":
		return MouseRelease, nil
	case "move":
		return MouseMove, nil
	case "scrollup", "scroll-up":
		return MouseScrollUp, nil
	case "scrolldown", "scroll-down":
		return MouseScrollDown, nil
	default:
		return 0, protocol.NewError(protocol.ErrUnknownMouseAction, fmt.Sprintf("unknown mouse action: %q", action))
	}
}

// buttonAndSuffix returns the SGR button code and press/release suffix for
// an action, per spec.md §4.4's fixed mapping.
func (a MouseAction) buttonAndSuffix() (int, byte) {
	switch a {
	case MousePress:
		return 0, 'M'
	case MouseRelease:
		return 0, 'm'
	case MouseMove:
		return 34, 'M'
	case MouseScrollUp:
		return 64, 'M'
	case MouseScrollDown:
		return 65, 'M'
	default:
		return 0, 'M'
	}
}

// MouseSGRSequence encodes an SGR mouse event (`CSI < button ; col ; row
// M|m`), converting 0-indexed public coordinates to the 1-indexed SGR
// convention. SGR encoding is used unconditionally to avoid the legacy
// 223-column limit.
func MouseSGRSequence(action MouseAction, col, row int) []byte {
	button, suffix := action.buttonAndSuffix()
	return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", button, col+1, row+1, suffix))
}
