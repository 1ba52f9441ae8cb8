package honeycomb

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/honeycombio/libhoney-go/transmission"
)

// TextSender is a transmission.Sender that renders each event as one line
// of human readable text on w.
//
// Modelled on honeycomb's own transmission.WriterSender.
type TextSender struct {
	sync.Mutex

	w io.Writer

	responses chan transmission.Response
}

func (s *TextSender) Start() error {
	s.responses = make(chan transmission.Response, 100)
	return nil
}

func (s *TextSender) Stop() error { return nil }

func (s *TextSender) Flush() error { return nil }

func (s *TextSender) Add(ev *transmission.Event) {
	line := s.format(ev)

	s.Lock()
	defer s.Unlock()
	_, _ = s.w.Write(line)
	s.SendResponse(transmission.Response{Metadata: ev.Metadata})
}

func (s *TextSender) TxResponses() chan transmission.Response {
	return s.responses
}

func (s *TextSender) SendResponse(r transmission.Response) bool {
	select {
	case s.responses <- r:
		return false
	default:
		// responses are advisory, drop rather than block
		return true
	}
}

func (s *TextSender) format(ev *transmission.Event) []byte {
	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "%s %s %.3fms %s",
		ev.Timestamp.Format("15:04:05"),
		shortTraceID(ev.Data["trace.trace_id"]),
		ev.Data["duration_ms"],
		ev.Data["name"],
	)

	for _, k := range sortedKeys(ev.Data) {
		if excluded(k) {
			continue
		}
		_, _ = fmt.Fprintf(&buf, " %s=%v", k, ev.Data[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// excluded drops the fields already rendered in the line header, and the
// noisy trace. and meta. prefixes.
func excluded(k string) bool {
	switch k {
	case "name", "version", "service", "duration_ms":
		return true
	}
	return strings.HasPrefix(k, "trace.") || strings.HasPrefix(k, "meta.")
}

// shortTraceID keeps the last five characters, enough to eyeball which
// lines belong together.
func shortTraceID(raw interface{}) string {
	id, ok := raw.(string)
	if !ok {
		return "unkwn"
	}
	return id[len(id)-5:]
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
