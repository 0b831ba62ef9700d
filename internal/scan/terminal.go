package scan

import (
	"os"

	"golang.org/x/term"
)

// keypressReader puts the controlling terminal into raw, no-echo mode
// for the scan engine's lifetime and delivers single bytes on a
// channel, so the tick loop can poll for a keypress without blocking.
// Acquisition is scoped: Close always restores the prior terminal
// state, on every exit path, per spec.md §4.2.
type keypressReader struct {
	fd       int
	oldState *term.State
	keys     chan byte
}

func newKeypressReader() (*keypressReader, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	kr := &keypressReader{fd: fd, oldState: oldState, keys: make(chan byte, 8)}
	go kr.readLoop()
	return kr, nil
}

func (kr *keypressReader) readLoop() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		select {
		case kr.keys <- buf[0]:
		default:
			// a previous keypress is still unconsumed; drop this one.
		}
	}
}

// poll returns the next buffered keypress without blocking.
func (kr *keypressReader) poll() (byte, bool) {
	select {
	case b := <-kr.keys:
		return b, true
	default:
		return 0, false
	}
}

func (kr *keypressReader) Close() error {
	return term.Restore(kr.fd, kr.oldState)
}
