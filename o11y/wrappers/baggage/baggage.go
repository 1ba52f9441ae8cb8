// Package baggage extracts o11y baggage from incoming HTTP requests.
package baggage

import (
	"context"
	"net/http"

	"github.com/spantrap/harness/o11y"
)

// Get returns the baggage the caller attached to r, if any. A header that
// does not parse is logged and dropped rather than failing the request.
func Get(ctx context.Context, r *http.Request) o11y.Baggage {
	raw := r.Header.Get("otcorrelations")
	if raw == "" {
		return o11y.Baggage{}
	}
	b, err := o11y.DeserializeBaggage(raw)
	if err != nil {
		o11y.FromContext(ctx).Log(ctx, "malformed baggage", o11y.Field("baggage", raw))
	}
	return b
}
