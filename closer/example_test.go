package closer_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/spantrap/harness/closer"
)

func ExampleErrorHandler() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"value":"fuchsia"}`)
	}))
	defer srv.Close()

	body, err := fetch(srv.URL)
	if err != nil {
		os.Exit(1)
	}
	fmt.Println(body)

	// output: {"value":"fuchsia"}
}

// fetch returns the response body. The deferred ErrorHandler folds a Close
// failure into the returned error without shadowing an earlier one.
func fetch(rawurl string) (_ string, err error) {
	//#nosec:G107 // this is a test
	//nolint:bodyclose // handled by closer
	resp, err := http.Get(rawurl)
	if err != nil {
		return "", err
	}
	defer closer.ErrorHandler(resp.Body, &err)

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
