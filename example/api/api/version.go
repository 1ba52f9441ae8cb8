package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "kv",
		"version": a.version,
	})
}
