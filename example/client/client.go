// Package client is the typed client for the kv API, for use by other
// services and by the acceptance tests.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/spantrap/harness/httpclient"
	"github.com/spantrap/harness/o11y"
)

// ErrNotFound is returned for keys the service does not have.
var ErrNotFound = o11y.NewWarning("key not found")

type Client struct {
	client *httpclient.Client
}

func New(baseURL string) *Client {
	return &Client{
		client: httpclient.New(httpclient.Config{
			Name:       "kv",
			BaseURL:    baseURL,
			AcceptType: httpclient.JSON,
			Timeout:    10 * time.Second,
		}),
	}
}

// Set stores value under key. A zero ttl stores the key forever.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	req := httpclient.NewRequest("PUT", "/api/kv/%s", 5*time.Second, key)
	req.Body = map[string]interface{}{
		"value":       value,
		"ttl_seconds": int(ttl / time.Second),
	}
	return c.client.Call(ctx, req)
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	type entry struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	var e entry

	req := httpclient.NewRequest("GET", "/api/kv/%s", 5*time.Second, key)
	req.Decoder = httpclient.NewJSONDecoder(&e)
	err := c.client.Call(ctx, req)
	if httpclient.HasStatusCode(err, http.StatusNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	req := httpclient.NewRequest("DELETE", "/api/kv/%s", 5*time.Second, key)
	err := c.client.Call(ctx, req)
	if httpclient.HasStatusCode(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

// Version describes the running service.
type Version struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

func (c *Client) Version(ctx context.Context) (Version, error) {
	var v Version
	req := httpclient.NewRequest("GET", "/api/version", 5*time.Second)
	req.Decoder = httpclient.NewJSONDecoder(&v)
	err := c.client.Call(ctx, req)
	return v, err
}
