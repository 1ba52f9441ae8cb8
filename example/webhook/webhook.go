// Package webhook posts change events to a consumer configured at startup.
package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spantrap/harness/httpclient"
	"github.com/spantrap/harness/o11y"
)

// Event is the payload delivered for every write. ID is unique per delivery
// so consumers can deduplicate.
type Event struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Key   string `json:"key"`
}

type Notifier struct {
	client *httpclient.Client
}

// New returns a notifier that posts events to the kv webhook route on
// baseURL.
func New(baseURL string) *Notifier {
	return &Notifier{
		client: httpclient.New(httpclient.Config{
			Name:       "webhook",
			BaseURL:    baseURL,
			AcceptType: httpclient.JSON,
			Timeout:    5 * time.Second,
		}),
	}
}

func (n *Notifier) Notify(ctx context.Context, event, key string) (err error) {
	ctx, span := o11y.StartSpan(ctx, "webhook: notify")
	defer o11y.End(span, &err)
	span.AddField("event", event)
	span.AddField("key", key)

	req := httpclient.NewRequest("POST", "/webhooks/kv", 5*time.Second)
	req.Body = Event{
		ID:    uuid.NewString(),
		Event: event,
		Key:   key,
	}
	return n.client.Call(ctx, req)
}
