// Package netx contains HTTP client construction and network error
// classification shared by the API client and the sync worker.
package netx

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// NewHTTPClient returns an http.Client with an overall request timeout and
// conservative transport limits suited to flaky mobile links.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.ResponseHeaderTimeout = timeout
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &http.Client{Timeout: timeout, Transport: transport}
}

// IsTransient reports whether err looks like a network condition that may go
// away on its own: timeouts, refused or reset connections, unexpected EOF.
// Cancellation by the caller is not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
