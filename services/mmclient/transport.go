package mmclient

import (
	"io"
	"net/http"
	"time"
)

const (
	retryAttempts = 3
	retryBackoff  = time.Second
)

// retryingRoundTripper retries requests on 429, 5xx and transport errors
// with exponential backoff. Bodies are replayed through GetBody; a request
// whose body cannot be replayed (streamed uploads) is never retried.
type retryingRoundTripper struct {
	next http.RoundTripper
}

func (rt *retryingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	backoff := retryBackoff
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		r := req
		if attempt > 1 {
			r = req.Clone(req.Context())
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return resp, err
				}
				r.Body = body
			}
		}

		resp, err = rt.next.RoundTrip(r)
		if !shouldRetry(resp, err) {
			return resp, err
		}
		if req.Body != nil && req.GetBody == nil {
			return resp, err
		}
		if attempt == retryAttempts {
			return resp, err
		}

		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return resp, err
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode >= 500
}

// newTransport builds the shared pooled transport. All three clients reuse
// it so the connection limits apply process-wide.
func newTransport(maxConnections, maxKeepalive int, enableHTTP2 bool) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     maxConnections,
		MaxIdleConns:        maxKeepalive,
		MaxIdleConnsPerHost: maxKeepalive,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   enableHTTP2,
	}
}
