package httpclient_test

import (
	"context"
	"net/url"
	"time"

	hc "github.com/spantrap/harness/httpclient"
)

func Example_routeParams() {
	req := hc.NewRequest("GET", "/kv/%s", time.Second, "some-key")
	req.Query = url.Values{"consistency": []string{"strong"}}

	var value string
	req.Decoder = hc.NewStringDecoder(&value)

	client := hc.New(hc.Config{
		Name:       "kv-client",
		BaseURL:    "http://127.0.0.1:6060/api",
		AcceptType: hc.JSON,
	})

	err := client.Call(context.Background(), req)
	if err != nil {
		// handle the error
	}
}
