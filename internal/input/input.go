// Package input translates the CLI's symbolic key and mouse names into the
// byte sequences a terminal program expects to receive, grounded on
// original_source/src/input.rs (the Rust implementation this repository's
// lexicon is distilled from).
package input

import (
	"fmt"
	"strings"

	"github.com/pepegar/tui-wright/internal/protocol"
)

// Key is a canonicalized symbolic key, closed over the lexicon spec.md §4.4
// defines.
type Key struct {
	kind keyKind
	ch   rune // set for Char, Ctrl, Alt
	fn   int  // set for F
}

type keyKind int

const (
	kindChar keyKind = iota
	kindEnter
	kindTab
	kindBackspace
	kindEscape
	kindUp
	kindDown
	kindLeft
	kindRight
	kindHome
	kindEnd
	kindPageUp
	kindPageDown
	kindInsert
	kindDelete
	kindF
	kindCtrl
	kindAlt
)

// ParseKeyName canonicalizes a case-insensitive key name into a Key, or
// returns a protocol error of kind UnknownKeyName / UnsupportedModifier.
func ParseKeyName(name string) (Key, error) {
	lower := strings.ToLower(name)

	if strings.HasPrefix(lower, "shift+") || strings.HasPrefix(lower, "shift-") {
		return Key{}, protocol.NewError(protocol.ErrUnsupportedModifier,
			fmt.Sprintf("shift+ is unsupported — send uppercase as literal text: %q", name))
	}

	if rest, ok := cutPrefix(lower, "ctrl+", "ctrl-"); ok {
		r, ok := firstRune(rest)
		if !ok || r < 'a' || r > 'z' {
			return Key{}, unknownKey(name)
		}
		return Key{kind: kindCtrl, ch: r}, nil
	}

	if rest, ok := cutPrefix(lower, "alt+", "alt-"); ok {
		r, ok := firstRune(rest)
		if !ok {
			return Key{}, unknownKey(name)
		}
		return Key{kind: kindAlt, ch: r}, nil
	}

	if strings.HasPrefix(lower, "f") && len(lower) >= 2 {
		var n int
		if _, err := fmt.Sscanf(lower[1:], "%d", &n); err == nil && n >= 1 && n <= 12 {
			return Key{kind: kindF, fn: n}, nil
		}
	}

	switch lower {
	case "enter", "return":
		return Key{kind: kindEnter}, nil
	case "tab":
		return Key{kind: kindTab}, nil
	case "backspace", "bs":
		return Key{kind: kindBackspace}, nil
	case "escape", "esc":
		return Key{kind: kindEscape}, nil
	case "up":
		return Key{kind: kindUp}, nil
	case "down":
		return Key{kind: kindDown}, nil
	case "left":
		return Key{kind: kindLeft}, nil
	case "right":
		return Key{kind: kindRight}, nil
	case "home":
		return Key{kind: kindHome}, nil
	case "end":
		return Key{kind: kindEnd}, nil
	case "pageup", "pgup":
		return Key{kind: kindPageUp}, nil
	case "pagedown", "pgdn":
		return Key{kind: kindPageDown}, nil
	case "insert", "ins":
		return Key{kind: kindInsert}, nil
	case "delete", "del":
		return Key{kind: kindDelete}, nil
	case "space":
		return Key{kind: kindChar, ch: ' '}, nil
	default:
		return Key{}, unknownKey(name)
	}
}

func unknownKey(name string) error {
	return protocol.NewError(protocol.ErrUnknownKeyName, fmt.Sprintf("unknown key name: %q", name))
}

func cutPrefix(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return s[len(p):], true
		}
	}
	return "", false
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// EscapeSequence returns the byte sequence a terminal program expects for
// this key — arrows as CSI A/B/C/D, function keys as standard VT/xterm
// sequences, ctrl+a..z as control codepoints 0x01..0x1A, and so on.
func (k Key) EscapeSequence() []byte {
	switch k.kind {
	case kindChar:
		return []byte(string(k.ch))
	case kindEnter:
		return []byte{13}
	case kindTab:
		return []byte{9}
	case kindBackspace:
		return []byte{127}
	case kindEscape:
		return []byte{27}
	case kindUp:
		return []byte("\x1b[A")
	case kindDown:
		return []byte("\x1b[B")
	case kindLeft:
		return []byte("\x1b[D")
	case kindRight:
		return []byte("\x1b[C")
	case kindHome:
		return []byte("\x1b[H")
	case kindEnd:
		return []byte("\x1b[F")
	case kindPageUp:
		return []byte("\x1b[5~")
	case kindPageDown:
		return []byte("\x1b[6~")
	case kindInsert:
		return []byte("\x1b[2~")
	case kindDelete:
		return []byte("\x1b[3~")
	case kindF:
		return fKeySequence(k.fn)
	case kindCtrl:
		b := byte(k.ch) - 'a' + 1
		return []byte{b}
	case kindAlt:
		buf := []byte{27}
		return append(buf, []byte(string(k.ch))...)
	default:
		return nil
	}
}

func fKeySequence(n int) []byte {
	switch n {
	case 1:
		return []byte("\x1bOP")
	case 2:
		return []byte("\x1bOQ")
	case 3:
		return []byte("\x1bOR")
	case 4:
		return []byte("\x1bOS")
	case 5:
		return []byte("\x1b[15~")
	case 6:
		return []byte("\x1b[17~")
	case 7:
		return []byte("\x1b[18~")
	case 8:
		return []byte("\x1b[19~")
	case 9:
		return []byte("\x1b[20~")
	case 10:
		return []byte("\x1b[21~")
	case 11:
		return []byte("\x1b[23~")
	case 12:
		return []byte("\x1b[24~")
	default:
		return nil
	}
}
