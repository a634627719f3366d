// Package directory talks to the upstream people directory service.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"sda-commons/internal/http/client"
	"sda-commons/internal/observability/logger"

	"go.uber.org/zap"
)

// Person is the directory representation of a person.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Team  string `json:"team,omitempty"`
}

// Client is a client for the directory service. Consumer token, trace
// headers and error typing come from the underlying platform client.
type Client struct {
	http *client.Client
}

// New wraps a platform client configured for the directory base URL.
func New(c *client.Client) *Client {
	return &Client{http: c}
}

// GetPerson fetches one person. Upstream failures are returned as
// *clienterr.TransportError or *clienterr.ResponseError.
func (c *Client) GetPerson(ctx context.Context, personID string) (*Person, error) {
	log := logger.FromContext(ctx)

	log.Debug(ctx, "fetching person from directory",
		logger.Module("directory"),
		logger.Action("get_person"),
		zap.String("person_id", personID),
	)

	var p Person
	if err := c.http.DoJSON(ctx, http.MethodGet, "/people/"+url.PathEscape(personID), nil, &p); err != nil {
		return nil, fmt.Errorf("get person %s: %w", personID, err)
	}
	return &p, nil
}

// ListTeam returns the people of a team.
func (c *Client) ListTeam(ctx context.Context, team string) ([]Person, error) {
	var out struct {
		Items []Person `json:"items"`
	}
	path := "/people?team=" + url.QueryEscape(team)
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list team %s: %w", team, err)
	}

	logger.FromContext(ctx).Debug(ctx, "team listed",
		logger.Module("directory"),
		logger.Action("list_team"),
		zap.Int("count", len(out.Items)),
	)
	return out.Items, nil
}
