package ports

import (
	"context"
	"net/http"
)

// Fetcher performs network requests. A returned error means the transport failed;
// any HTTP status, including 4xx and 5xx, is a successful fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}
