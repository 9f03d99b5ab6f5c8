package mmclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func fakeResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

// onlyReader hides the concrete reader type so http.NewRequest cannot set up
// GetBody, mimicking a streamed upload.
type onlyReader struct{ io.Reader }

func TestRetryingRoundTripper(t *testing.T) {
	t.Run("Retries a 429 and replays the body", func(t *testing.T) {
		var attempts int
		var bodies []string
		rt := &retryingRoundTripper{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			data, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(data))
			if attempts == 1 {
				return fakeResponse(http.StatusTooManyRequests), nil
			}
			return fakeResponse(http.StatusOK), nil
		})}

		req, err := http.NewRequest(http.MethodPost, "http://mm.local/api", strings.NewReader("payload"))
		require.NoError(t, err)

		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, []string{"payload", "payload"}, bodies)
	})

	t.Run("Retries transport errors", func(t *testing.T) {
		var attempts int
		rt := &retryingRoundTripper{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("connection reset")
			}
			return fakeResponse(http.StatusOK), nil
		})}

		req, err := http.NewRequest(http.MethodGet, "http://mm.local/api", nil)
		require.NoError(t, err)

		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, attempts)
	})

	t.Run("Gives up after three attempts", func(t *testing.T) {
		var attempts int
		rt := &retryingRoundTripper{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			return fakeResponse(http.StatusBadGateway), nil
		})}

		req, err := http.NewRequest(http.MethodGet, "http://mm.local/api", nil)
		require.NoError(t, err)

		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, 3, attempts)
	})

	t.Run("Client errors pass through untouched", func(t *testing.T) {
		var attempts int
		rt := &retryingRoundTripper{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			return fakeResponse(http.StatusBadRequest), nil
		})}

		req, err := http.NewRequest(http.MethodGet, "http://mm.local/api", nil)
		require.NoError(t, err)

		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Streamed bodies are never retried", func(t *testing.T) {
		var attempts int
		rt := &retryingRoundTripper{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			return fakeResponse(http.StatusInternalServerError), nil
		})}

		req, err := http.NewRequest(http.MethodPost, "http://mm.local/upload", onlyReader{strings.NewReader("streamed")})
		require.NoError(t, err)
		require.Nil(t, req.GetBody)

		resp, err := rt.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Backoff stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		var attempts int
		rt := &retryingRoundTripper{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			return fakeResponse(http.StatusServiceUnavailable), nil
		})}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://mm.local/api", nil)
		require.NoError(t, err)

		_, err = rt.RoundTrip(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, attempts)
	})
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(nil, errors.New("boom")))
	assert.True(t, shouldRetry(fakeResponse(http.StatusTooManyRequests), nil))
	assert.True(t, shouldRetry(fakeResponse(http.StatusInternalServerError), nil))
	assert.True(t, shouldRetry(fakeResponse(http.StatusBadGateway), nil))
	assert.False(t, shouldRetry(fakeResponse(http.StatusOK), nil))
	assert.False(t, shouldRetry(fakeResponse(http.StatusBadRequest), nil))
	assert.False(t, shouldRetry(fakeResponse(http.StatusNotFound), nil))
}
