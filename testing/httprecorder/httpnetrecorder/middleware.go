/*
Package httpnetrecorder hooks a httprecorder into a plain net/http handler,
for test fakes that do not use Gin.
*/
package httpnetrecorder

import (
	"context"
	"net/http"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/testing/httprecorder"
)

// Middleware records each request into rec before handing it to h.
func Middleware(ctx context.Context, rec *httprecorder.RequestRecorder, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rec.Record(r); err != nil {
			o11y.LogError(ctx, "httprecorder: record failed", err)
		}
		h.ServeHTTP(w, r)
	})
}
