package tsa

import (
	"context"
	"crypto"
	"crypto/sha256"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/digitorus/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcook/rust-tool-action/internal/testutil"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithInitialInterval(time.Millisecond)}, opts...)
	c, err := New(url, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "timestamp.digicert.com", "http://"} {
		_, err := New(raw)
		assert.Error(t, err, raw)
	}
}

func TestTimestamp(t *testing.T) {
	authority := testutil.NewTSA(t)
	srv := authority.Server(t)
	c := newTestClient(t, srv.URL)

	data := []byte("encrypted digest")
	token, err := c.Timestamp(context.Background(), data)
	require.NoError(t, err)

	ts, err := timestamp.Parse(token)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, sum[:], ts.HashedMessage)
	assert.Equal(t, crypto.SHA256, ts.HashAlgorithm)
	assert.Equal(t, 1, authority.Requests())
}

func TestTimestamp_RetriesTransientFailures(t *testing.T) {
	authority := testutil.NewTSA(t)
	authority.FailFirst = 2
	srv := authority.Server(t)
	c := newTestClient(t, srv.URL)

	_, err := c.Timestamp(context.Background(), []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, 3, authority.Requests())
}

func TestTimestamp_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"service unavailable", http.StatusServiceUnavailable},
		{"bad gateway", http.StatusBadGateway},
		{"too many requests", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := testutil.NewTSA(t)
			authority.Status = tt.status
			srv := authority.Server(t)
			c := newTestClient(t, srv.URL, WithRetries(2))

			_, err := c.Timestamp(context.Background(), []byte("data"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.True(t, IsTransient(err))
			assert.Equal(t, 3, authority.Requests())
		})
	}
}

func TestTimestamp_Rejected(t *testing.T) {
	authority := testutil.NewTSA(t)
	authority.Status = http.StatusBadRequest
	srv := authority.Server(t)
	c := newTestClient(t, srv.URL)

	_, err := c.Timestamp(context.Background(), []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, authority.Requests(), "permanent failures are not retried")
}

func TestTimestamp_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a timestamp</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Timestamp(context.Background(), []byte("data"))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestTimestamp_StatusRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := timestamp.CreateErrorResponse(timestamp.Rejection, timestamp.BadAlgorithm)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Timestamp(context.Background(), []byte("data"))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestTimestamp_WrongDigest(t *testing.T) {
	authority := testutil.NewTSA(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req, err := timestamp.ParseRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		other := sha256.Sum256([]byte("something else"))
		ts := &timestamp.Timestamp{
			HashAlgorithm:     crypto.SHA256,
			HashedMessage:     other[:],
			Time:              time.Now(),
			Nonce:             req.Nonce,
			Policy:            []int{1, 2, 3},
			AddTSACertificate: true,
		}
		resp, err := ts.CreateResponseWithOpts(authority.Certificate, authority.Key, crypto.SHA256)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Timestamp(context.Background(), []byte("data"))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestTimestamp_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url, WithRetries(1)).Timestamp(context.Background(), []byte("data"))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestTimestamp_ContextCancelled(t *testing.T) {
	authority := testutil.NewTSA(t)
	authority.Status = http.StatusServiceUnavailable
	srv := authority.Server(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).Timestamp(ctx, []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}
