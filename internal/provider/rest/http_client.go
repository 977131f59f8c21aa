package rest

import (
	"net/http"
	"time"
)

// HTTPClient interface abstracts HTTP operations for testing
type HTTPClient interface {
	// Do executes an HTTP request and returns a response
	Do(req *http.Request) (*http.Response, error)
}

// newHTTPClient returns the production client. A zero timeout is replaced by
// the default so a hanging provider cannot block a request forever.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
