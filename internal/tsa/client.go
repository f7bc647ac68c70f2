// Package tsa is an RFC 3161 timestamp client.
//
// Failures are split in two: ErrUnavailable covers network errors, server
// errors and throttling, which are retried and may succeed later;
// ErrRejected covers everything the authority actively refused or answered
// with something unusable, which is never retried.
package tsa

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/digitorus/timestamp"

	"github.com/rcook/rust-tool-action/internal/logging"
)

const (
	// DefaultURL is the authority used when none is configured.
	DefaultURL = "http://timestamp.digicert.com"
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultRetries is the default number of retries after the first attempt
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "rust-tool-action-sign/1.0"

	contentTypeQuery = "application/timestamp-query"
	maxResponseSize  = 1 << 20
)

var (
	// ErrUnavailable marks a failure that may succeed on a later attempt.
	ErrUnavailable = errors.New("timestamp authority unavailable")
	// ErrRejected marks a permanent failure.
	ErrRejected = errors.New("timestamp request rejected")
)

// IsTransient reports whether err is a retryable timestamping failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Client requests timestamps from one authority.
type Client struct {
	url             string
	client          *http.Client
	userAgent       string
	retries         uint64
	initialInterval time.Duration
	logger          logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// WithInitialInterval sets the first backoff delay; later delays double.
func WithInitialInterval(d time.Duration) Option {
	return func(c *Client) { c.initialInterval = d }
}

// WithLogger sets the logger used to report retries.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the authority at rawURL.
func New(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("timestamp URL must be http or https: %q", rawURL)
	}

	c := &Client{
		url:             u.String(),
		client:          &http.Client{Timeout: DefaultTimeout},
		userAgent:       DefaultUserAgent,
		retries:         DefaultRetries,
		initialInterval: time.Second,
		logger:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the authority's address.
func (c *Client) URL() string {
	return c.url
}

// Timestamp returns a DER TimeStampToken over the SHA-256 of data.
func (c *Client) Timestamp(ctx context.Context, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	req := &timestamp.Request{
		HashAlgorithm: crypto.SHA256,
		HashedMessage: digest[:],
		Certificates:  true,
		Nonce:         nonce,
	}
	body, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode timestamp request: %w", err)
	}

	var token []byte
	attempts := 0
	operation := func() error {
		attempts++
		t, err := c.requestOnce(ctx, body, digest[:], nonce)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		token = t
		return nil
	}
	notify := func(err error, delay time.Duration) {
		c.logger.Warn("timestamp request failed, retrying", "url", c.url, "delay", delay, "error", err)
	}

	if err := backoff.RetryNotify(operation, c.backoff(ctx), notify); err != nil {
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("timestamp failed after %d attempts: %w", attempts, err)
	}
	c.logger.Debug("timestamp obtained", "url", c.url, "attempts", attempts)
	return token, nil
}

// backoff yields delays of 1s, 2s, 4s for the default settings.
func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     c.initialInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.initialInterval << c.retries,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, c.retries), ctx)
}

func (c *Client) requestOnce(ctx context.Context, body, digest []byte, nonce *big.Int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", contentTypeQuery)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrRejected, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if len(raw) > maxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrRejected, maxResponseSize)
	}

	ts, err := timestamp.ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if ts.HashAlgorithm != crypto.SHA256 || !bytes.Equal(ts.HashedMessage, digest) {
		return nil, fmt.Errorf("%w: response does not cover the requested digest", ErrRejected)
	}
	if ts.Nonce == nil || ts.Nonce.Cmp(nonce) != 0 {
		return nil, fmt.Errorf("%w: response nonce does not match request", ErrRejected)
	}
	return ts.RawToken, nil
}
