package video

import (
	"bytes"
	"strings"
	"sync"
)

// lastLines keeps the tail of a process's stderr for error messages.
type lastLines struct {
	mu      sync.Mutex
	partial bytes.Buffer
	current int
	lines   []string
}

func newLastLines(limit int) *lastLines {
	return &lastLines{lines: make([]string, limit)}
}

func (ll *lastLines) Write(p []byte) (int, error) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	ll.partial.Write(p)
	b := ll.partial.Bytes()
	pos := 0
	for {
		i := bytes.IndexAny(b[pos:], "\n\r")
		if i < 0 {
			break
		}
		ll.add(string(b[pos : pos+i]))
		pos += i + 1
	}
	rest := append([]byte(nil), b[pos:]...)
	ll.partial.Reset()
	ll.partial.Write(rest)
	return len(p), nil
}

func (ll *lastLines) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	ll.lines[ll.current] = line
	ll.current = (ll.current + 1) % len(ll.lines)
}

// String returns the buffered lines, oldest first, including an
// unterminated trailing line.
func (ll *lastLines) String() string {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	var ls []string
	for i := 0; i < len(ll.lines); i++ {
		if l := ll.lines[(ll.current+i)%len(ll.lines)]; l != "" {
			ls = append(ls, l)
		}
	}
	if tail := strings.TrimSpace(ll.partial.String()); tail != "" {
		ls = append(ls, tail)
	}
	return strings.Join(ls, "\n")
}
