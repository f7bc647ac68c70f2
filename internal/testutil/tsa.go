package testutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/digitorus/timestamp"
)

var testPolicy = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1}

// TSA is an in-process RFC 3161 timestamp authority.
type TSA struct {
	Certificate *x509.Certificate
	Key         crypto.Signer

	// FailFirst makes the first n HTTP requests fail with 503.
	FailFirst int32
	// Status, when non-zero, is returned for every HTTP request.
	Status int

	requests atomic.Int32
}

// NewTSA creates a TSA with a fresh self-signed timestamping certificate.
func NewTSA(t testing.TB) *TSA {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate TSA key: %v", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               pkix.Name{CommonName: "Test Timestamp Authority"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("failed to create TSA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse TSA certificate: %v", err)
	}
	return &TSA{Certificate: cert, Key: key}
}

// Requests returns the number of HTTP requests served.
func (a *TSA) Requests() int {
	return int(a.requests.Load())
}

// Timestamp returns a TimeStampToken over data without going through HTTP.
func (a *TSA) Timestamp(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	resp, err := a.respond(crypto.SHA256, sum[:], nil)
	if err != nil {
		return nil, err
	}
	ts, err := timestamp.ParseResponse(resp)
	if err != nil {
		return nil, err
	}
	return ts.RawToken, nil
}

func (a *TSA) respond(hash crypto.Hash, hashed []byte, nonce *big.Int) ([]byte, error) {
	ts := &timestamp.Timestamp{
		HashAlgorithm:     hash,
		HashedMessage:     hashed,
		Time:              time.Now().UTC().Truncate(time.Second),
		Nonce:             nonce,
		Policy:            testPolicy,
		AddTSACertificate: true,
	}
	return ts.CreateResponseWithOpts(a.Certificate, a.Key, crypto.SHA256)
}

// ServeHTTP answers timestamp requests.
func (a *TSA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := a.requests.Add(1)
	if n <= a.FailFirst {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if a.Status != 0 {
		http.Error(w, http.StatusText(a.Status), a.Status)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := timestamp.ParseRequest(body)
	if err != nil {
		resp, _ := timestamp.CreateErrorResponse(timestamp.Rejection, timestamp.BadDataFormat)
		w.Header().Set("Content-Type", "application/timestamp-reply")
		_, _ = w.Write(resp)
		return
	}
	resp, err := a.respond(req.HashAlgorithm, req.HashedMessage, req.Nonce)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/timestamp-reply")
	_, _ = w.Write(resp)
}

// Server starts an HTTP server for a and closes it when the test ends.
func (a *TSA) Server(t testing.TB) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)
	return srv
}
