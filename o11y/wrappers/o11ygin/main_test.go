package o11ygin

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	// Quiet gin's debug chatter for every test in the package.
	gin.SetMode(gin.ReleaseMode)
	os.Exit(m.Run())
}
