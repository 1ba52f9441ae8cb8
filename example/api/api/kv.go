package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/spantrap/harness/example/store"
)

var validate = validator.New()

func (a *API) getKey(c *gin.Context) {
	type response struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}

	ctx := c.Request.Context()
	key := c.Param("key")

	value, err := a.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{})
		return
	}

	c.JSON(http.StatusOK, response{
		Key:   key,
		Value: value,
	})
}

func (a *API) putKey(c *gin.Context) {
	type request struct {
		Value      string `json:"value" validate:"required"`
		TTLSeconds int    `json:"ttl_seconds" validate:"gte=0"`
	}

	ctx := c.Request.Context()
	key := c.Param("key")

	var req request
	err := c.BindJSON(&req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{})
		return
	}

	err = validate.Struct(req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{})
		return
	}

	err = a.store.Set(ctx, key, req.Value, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{})
		return
	}

	a.notify(ctx, "set", key)

	c.JSON(http.StatusOK, gin.H{"key": key})
}

func (a *API) deleteKey(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	err := a.store.Delete(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{})
		return
	}

	a.notify(ctx, "delete", key)

	c.JSON(http.StatusOK, gin.H{})
}
