/*
Package ginrecorder hooks a httprecorder into a Gin router, for test fakes
built on Gin.
*/
package ginrecorder

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/testing/httprecorder"
)

// Middleware records each request into rec before the real handlers see it.
func Middleware(ctx context.Context, rec *httprecorder.RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := rec.Record(c.Request); err != nil {
			o11y.LogError(ctx, "httprecorder: record failed", err)
		}
		c.Next()
	}
}
