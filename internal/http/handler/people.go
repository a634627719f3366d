package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"sda-commons/internal/auth"
	"sda-commons/internal/http/httperr"
	"sda-commons/internal/integrations/directory"
	"sda-commons/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PersonLookup fetches people from the directory
type PersonLookup interface {
	GetPerson(ctx context.Context, personID string) (*directory.Person, error)
	ListTeam(ctx context.Context, team string) ([]directory.Person, error)
}

// PeopleHandler serves people resolved through the upstream directory
type PeopleHandler struct {
	directory PersonLookup
}

// NewPeopleHandler creates a new people handler
func NewPeopleHandler(d PersonLookup) *PeopleHandler {
	return &PeopleHandler{directory: d}
}

// PersonResponse is the body of GET /v1/people/{personId}
type PersonResponse struct {
	Data *directory.Person `json:"data"`
}

// TeamResponse is the body of GET /v1/teams/{team}/people
type TeamResponse struct {
	Data []directory.Person `json:"data"`
}

// GetPerson handles GET /v1/people/{personId}. Upstream failures are mapped
// by the error mapper registered on the request context.
func (h *PeopleHandler) GetPerson(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	personID := strings.TrimSpace(chi.URLParam(r, "personId"))
	if personID == "" {
		return httperr.BadRequest("personId is required").WithDetail("field", "personId")
	}

	person, err := h.directory.GetPerson(ctx, personID)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		logger.Module("people"),
		logger.Action("get_person"),
		zap.String("person_id", person.ID),
	}
	if claims, ok := auth.GetClaims(ctx); ok {
		fields = append(fields, zap.String("subject", claims.Subject))
	}
	logger.FromContext(ctx).Info(ctx, "person resolved", fields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(PersonResponse{Data: person})
}

// ListTeam handles GET /v1/teams/{team}/people
func (h *PeopleHandler) ListTeam(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	team := strings.TrimSpace(chi.URLParam(r, "team"))
	if team == "" {
		return httperr.BadRequest("team is required").WithDetail("field", "team")
	}

	people, err := h.directory.ListTeam(ctx, team)
	if err != nil {
		return err
	}
	if people == nil {
		people = []directory.Person{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(TeamResponse{Data: people})
}
