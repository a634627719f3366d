package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"sda-commons/internal/http/client/clienterr"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/requestctx"

	"go.uber.org/zap"
)

// passThroughStatus lists upstream statuses that are safe to forward to the
// inbound caller unchanged. Everything else is reported as 502.
var passThroughStatus = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusNotFound:            true,
	http.StatusConflict:            true,
	http.StatusGone:                true,
	http.StatusPreconditionFailed:  true,
	http.StatusUnprocessableEntity: true,
	http.StatusTooManyRequests:     true,
}

// Map converts err into a status code and the body to send. The error
// message itself is never part of the body.
func Map(err error) (int, ErrorBody) {
	if appErr, ok := AsError(err); ok {
		status := appErr.Status
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		title := appErr.Title
		if title == "" {
			title = http.StatusText(status)
		}
		return status, ErrorBody{Title: title, Code: appErr.Code, Details: appErr.Details}
	}

	if te, ok := clienterr.AsTransport(err); ok {
		return mapTransport(te)
	}

	if re, ok := clienterr.AsResponse(err); ok {
		details := map[string]any{"upstreamStatus": re.StatusCode}
		if passThroughStatus[re.StatusCode] {
			return re.StatusCode, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamError, Details: details}
		}
		return http.StatusBadGateway, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamError, Details: details}
	}

	return http.StatusInternalServerError, ErrorBody{Title: TitleInternal, Code: CodeInternalError}
}

func mapTransport(te *clienterr.TransportError) (int, ErrorBody) {
	switch te.Kind {
	case clienterr.KindTimeout:
		return http.StatusGatewayTimeout, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamTimeout}
	case clienterr.KindConnect:
		return http.StatusBadGateway, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamUnavailable}
	case clienterr.KindTLS:
		return http.StatusBadGateway, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamTLS}
	case clienterr.KindCircuitOpen:
		return http.StatusBadGateway, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamCircuitOpen}
	default:
		return http.StatusBadGateway, ErrorBody{Title: TitleUpstreamFailed, Code: CodeUpstreamError}
	}
}

// Mapper writes mapped errors and logs their full cause.
type Mapper struct {
	log *logger.Logger
	// exposeErrorID adds the request ID to 500 bodies (development only).
	exposeErrorID bool
}

// MapperOption configures a Mapper
type MapperOption func(*Mapper)

// WithErrorID makes 500 responses carry details.errorId with the request ID.
func WithErrorID(enabled bool) MapperOption {
	return func(m *Mapper) {
		m.exposeErrorID = enabled
	}
}

// NewMapper creates a Mapper. A nil logger discards log output.
func NewMapper(log *logger.Logger, opts ...MapperOption) *Mapper {
	if log == nil {
		log = logger.Nop()
	}
	m := &Mapper{log: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Write maps err and writes the JSON error body to w.
func (m *Mapper) Write(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, body := Map(err)

	fields := []zap.Field{
		logger.Module("http"),
		logger.Action("error_mapping"),
		zap.Int("status_code", status),
		zap.String("error_code", body.Code),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if te, ok := clienterr.AsTransport(err); ok {
		fields = append(fields, logger.Client(te.Client), zap.String("upstream_kind", string(te.Kind)))
	}
	if re, ok := clienterr.AsResponse(err); ok {
		fields = append(fields, logger.Client(re.Client), zap.Int("upstream_status", re.StatusCode))
	}

	if status >= 500 {
		m.log.Error(ctx, "request failed", fields...)
	} else {
		m.log.Warn(ctx, "request rejected", fields...)
	}

	if status == http.StatusInternalServerError && m.exposeErrorID {
		if reqID := requestctx.RequestID(ctx); reqID != "" {
			if body.Details == nil {
				body.Details = make(map[string]any)
			}
			body.Details["errorId"] = reqID
		}
	}

	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type mapperContextKey struct{}

// WithMapper stores m in ctx
func WithMapper(ctx context.Context, m *Mapper) context.Context {
	return context.WithValue(ctx, mapperContextKey{}, m)
}

// MapperFrom returns the mapper stored in ctx or a default one.
func MapperFrom(ctx context.Context) *Mapper {
	if m, ok := ctx.Value(mapperContextKey{}).(*Mapper); ok && m != nil {
		return m
	}
	return NewMapper(logger.FromContext(ctx))
}

// HandlerFunc is an http handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements http.Handler. A returned error is written through the
// mapper registered on the request context.
func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := f(w, r); err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			// Caller went away; nobody is reading the response.
			MapperFrom(r.Context()).log.Debug(r.Context(), "request canceled by caller",
				logger.Module("http"),
				logger.Action("error_mapping"),
			)
			return
		}
		MapperFrom(r.Context()).Write(w, r, err)
	}
}

// WriteError maps err with the mapper registered on r's context.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	MapperFrom(r.Context()).Write(w, r, err)
}
