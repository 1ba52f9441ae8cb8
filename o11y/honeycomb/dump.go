package honeycomb

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/honeycombio/libhoney-go/transmission"
)

// DumpSender implements the transmission.Sender interface by writing every
// event to w as a single line of JSON. Services under test point this at
// their span dump file so a harness can read the spans back whilst the
// service is still running. Each line is written with one Write call so a
// concurrent reader never sees an interleaved record, only a possibly
// incomplete final line.
type DumpSender struct {
	sync.Mutex

	w io.Writer

	responses chan transmission.Response
}

// dumpRecord is the wire form of one span in the dump file. The reader side
// lives in testing/spandump.
type dumpRecord struct {
	Time       time.Time              `json:"time"`
	Dataset    string                 `json:"dataset,omitempty"`
	SampleRate uint                   `json:"samplerate,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

func (d *DumpSender) Start() error {
	d.responses = make(chan transmission.Response, 100)
	return nil
}

func (d *DumpSender) Stop() error { return nil }

func (d *DumpSender) Flush() error { return nil }

func (d *DumpSender) Add(ev *transmission.Event) {
	// marshal errors are ignored as they are in honeycomb's own WriterSender
	m, _ := json.Marshal(dumpRecord{
		Time:       ev.Timestamp,
		Dataset:    ev.Dataset,
		SampleRate: ev.SampleRate,
		Data:       ev.Data,
	})
	m = append(m, '\n')

	d.Lock()
	defer d.Unlock()
	_, _ = d.w.Write(m)
	d.SendResponse(transmission.Response{Metadata: ev.Metadata})
}

func (d *DumpSender) TxResponses() chan transmission.Response {
	return d.responses
}

func (d *DumpSender) SendResponse(r transmission.Response) bool {
	select {
	case d.responses <- r:
	default:
		return true
	}
	return false
}
