package supervisor

import (
	"regexp"
	"strconv"
	"sync"
)

// The trailing non-digit stops a port split across writes from being taken
// early, half its digits short. Announcements are lines, so the line break
// always terminates the match.
var portAnnouncement = regexp.MustCompile(`(?i)listening on port (\d+)\D`)

// portScanner watches the child's output for the port announcement. Writes
// accumulate, so an announcement split across arbitrary chunk boundaries is
// still matched. The first match resolves the cell; after that the scanner
// keeps accepting writes but stops looking.
type portScanner struct {
	cell *cell

	mu      sync.Mutex
	pending []byte
	matched bool
}

// keep enough accumulated output to span any chunk boundary; announcements
// are one short line
const scanWindow = 64 * 1024

func (p *portScanner) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.matched {
		return len(b), nil
	}

	p.pending = append(p.pending, b...)
	m := portAnnouncement.FindSubmatch(p.pending)
	if m == nil {
		if len(p.pending) > scanWindow {
			p.pending = append(p.pending[:0], p.pending[len(p.pending)-scanWindow:]...)
		}
		return len(b), nil
	}

	p.matched = true
	p.pending = nil

	port, err := strconv.Atoi(string(m[1]))
	if err != nil {
		// \d+ only fails Atoi by overflowing
		p.cell.resolve(0, err)
		return len(b), nil
	}
	p.cell.resolve(port, nil)
	return len(b), nil
}
