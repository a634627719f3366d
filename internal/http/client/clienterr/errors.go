// Package clienterr defines the typed failures returned by platform HTTP
// clients. It has no dependencies on other internal packages so that the
// inbound error mapper can inspect outbound failures without an import cycle.
package clienterr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/sony/gobreaker"
)

// Kind categorizes a transport failure
type Kind string

const (
	KindConnect     Kind = "connect"
	KindTimeout     Kind = "timeout"
	KindTLS         Kind = "tls"
	KindCircuitOpen Kind = "circuit_open"
	KindCanceled    Kind = "canceled"
	KindUnknown     Kind = "unknown"
)

// TransportError is returned when an outbound call produced no response:
// connection refused, DNS failure, timeout, TLS failure or an open breaker.
type TransportError struct {
	Client string
	Method string
	// URL is sanitized and safe to log.
	URL  string
	Kind Kind
	Err  error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s failed (%s): %v", e.Client, e.Method, e.URL, e.Kind, e.Err)
}

// Unwrap implements error unwrapping
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	return e.Kind == KindTimeout
}

// ResponseError is returned for upstream responses outside the 2xx range.
type ResponseError struct {
	Client     string
	Method     string
	URL        string
	StatusCode int
	// Body holds at most MaxBodyExcerpt bytes of the upstream response.
	Body []byte
}

// MaxBodyExcerpt bounds ResponseError.Body.
const MaxBodyExcerpt = 4 << 10

// Error implements the error interface
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s %s returned status %d", e.Client, e.Method, e.URL, e.StatusCode)
}

// AsTransport returns the TransportError in err's chain, if any.
func AsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// AsResponse returns the ResponseError in err's chain, if any.
func AsResponse(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsStatus reports whether err is an upstream response with the given status.
func IsStatus(err error, status int) bool {
	re, ok := AsResponse(err)
	return ok && re.StatusCode == status
}

// Classify maps a low-level round trip error to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	if isTLS(err) {
		return KindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnect
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnect
	}

	return KindUnknown
}

func isTLS(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		alertErr    tls.AlertError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownCA) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &alertErr)
}
