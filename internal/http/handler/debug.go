package handler

import (
	"encoding/json"
	"net/http"
	"sort"

	"sda-commons/internal/auth"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/requestctx"

	"go.uber.org/zap"
)

// DebugHandler provides debug endpoints for development
type DebugHandler struct {
	appEnv string
	holder *requestctx.Holder
}

// NewDebugHandler creates a new debug handler
func NewDebugHandler(appEnv string, holder *requestctx.Holder) *DebugHandler {
	if appEnv == "" {
		appEnv = "production" // default to production for safety
	}
	return &DebugHandler{appEnv: appEnv, holder: holder}
}

// DebugContextResponse describes what outbound clients would propagate for
// the current request. Header values other than the request ID are omitted.
type DebugContextResponse struct {
	RequestID             string   `json:"requestId"`
	TraceHeaders          []string `json:"traceHeaders"`
	AuthorizationCaptured bool     `json:"authorizationCaptured"`
	Subject               string   `json:"subject,omitempty"`
}

// GetContextDebug returns the captured propagation context
// Only available in development mode (APP_ENV=dev)
// GET /debug/context
func (h *DebugHandler) GetContextDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.appEnv != "dev" && h.appEnv != "development" {
		log.Warn(ctx, "debug endpoint accessed in non-dev environment",
			logger.Module("debug"),
			logger.Action("context"),
			zap.String("app_env", h.appEnv),
		)
		http.NotFound(w, r)
		return
	}

	captured := h.holder.Current(ctx)
	names := make([]string, 0, len(captured.Trace))
	for name := range captured.Trace {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := DebugContextResponse{
		RequestID:             captured.RequestID,
		TraceHeaders:          names,
		AuthorizationCaptured: captured.Authorization != "",
	}
	if claims, ok := auth.GetClaims(ctx); ok {
		resp.Subject = claims.Subject
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
