// Package requestctx captures the trace and consumer-identity headers of an
// inbound request so that outbound calls made while handling it can copy them
// forward.
//
// The captured bag travels with the request's context.Context. A Holder only
// keeps a registry of in-flight requests so that Clear can release a bag when
// the request ends; a context can never observe a bag it did not capture.
package requestctx

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// Well-known propagation headers shared platform-wide.
const (
	HeaderRequestID     = "X-Request-Id"
	HeaderTraceToken    = "Trace-Token"
	HeaderConsumerToken = "X-Consumer-Token"
	HeaderAuthorization = "Authorization"
)

// DefaultTraceHeaders are captured when NewHolder is called without names.
var DefaultTraceHeaders = []string{HeaderRequestID, HeaderTraceToken}

// Headers is the bag captured for one inbound request. Treat it as read-only.
type Headers struct {
	RequestID string
	// Trace maps canonical header names to the inbound value.
	Trace map[string]string
	// Authorization is only forwarded by clients with authentication
	// pass-through enabled and must never be logged.
	Authorization string
}

// IsZero reports whether nothing was captured.
func (h Headers) IsZero() bool {
	return h.RequestID == "" && len(h.Trace) == 0 && h.Authorization == ""
}

// Holder tracks the header bags of requests currently being processed.
type Holder struct {
	traceHeaders []string

	seq     atomic.Uint64
	mu      sync.RWMutex
	entries map[uint64]Headers
}

// NewHolder creates a Holder capturing the given trace header names.
// Empty names are ignored; with no names DefaultTraceHeaders is used.
func NewHolder(traceHeaders ...string) *Holder {
	names := make([]string, 0, len(traceHeaders))
	seen := make(map[string]bool, len(traceHeaders))
	for _, name := range traceHeaders {
		name = http.CanonicalHeaderKey(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		names = append(names, DefaultTraceHeaders...)
	}

	return &Holder{
		traceHeaders: names,
		entries:      make(map[uint64]Headers),
	}
}

// TraceHeaders returns the canonical names this holder captures.
func (h *Holder) TraceHeaders() []string {
	out := make([]string, len(h.traceHeaders))
	copy(out, h.traceHeaders)
	return out
}

// Capture stores the trace subset of header for the request identified by
// requestID and returns a context bound to it. The request ID is always part
// of the trace subset, even if the inbound request did not carry it.
func (h *Holder) Capture(ctx context.Context, requestID string, header http.Header) context.Context {
	bag := Headers{
		RequestID: requestID,
		Trace:     make(map[string]string, len(h.traceHeaders)),
	}
	for _, name := range h.traceHeaders {
		if v := header.Get(name); v != "" {
			bag.Trace[name] = v
		}
	}
	if requestID != "" {
		bag.Trace[HeaderRequestID] = requestID
	}
	bag.Authorization = header.Get(HeaderAuthorization)

	// Handles are process-unique so that two requests sharing a client-supplied
	// request ID still get separate bags.
	handle := h.seq.Add(1)

	h.mu.Lock()
	h.entries[handle] = bag
	h.mu.Unlock()

	ctx = WithRequestID(ctx, requestID)
	return context.WithValue(ctx, handleContextKey, &scope{holder: h, handle: handle})
}

// Current returns the bag captured for ctx, or the zero bag.
func (h *Holder) Current(ctx context.Context) Headers {
	s, ok := scopeFrom(ctx, h)
	if !ok {
		return Headers{}
	}

	h.mu.RLock()
	bag := h.entries[s.handle]
	h.mu.RUnlock()
	return bag
}

// Clear releases the bag captured for ctx. It is a no-op if ctx was never
// captured by this holder or was already cleared.
func (h *Holder) Clear(ctx context.Context) {
	s, ok := scopeFrom(ctx, h)
	if !ok {
		return
	}

	h.mu.Lock()
	delete(h.entries, s.handle)
	h.mu.Unlock()
}

// Active returns the number of captured requests not yet cleared.
func (h *Holder) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

type scope struct {
	holder *Holder
	handle uint64
}

func scopeFrom(ctx context.Context, h *Holder) (*scope, bool) {
	if h == nil || ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(handleContextKey).(*scope)
	if !ok || s.holder != h {
		return nil, false
	}
	return s, true
}
