package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"sda-commons/internal/http/client/clienterr"
)

// Client is a pre-configured outbound HTTP client. It is safe for concurrent
// use and performs no retries.
type Client struct {
	name    string
	baseURL *url.URL
	http    *http.Client
}

// Name returns the client name.
func (c *Client) Name() string { return c.name }

// BaseURL returns a copy of the base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// HTTPClient exposes the underlying client with all platform transports
// installed. Responses obtained through it are not mapped to typed errors.
func (c *Client) HTTPClient() *http.Client { return c.http }

// NewRequest creates a request for path resolved against the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := resolve(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("client %q: invalid path %q: %w", c.name, path, err)
	}
	return http.NewRequestWithContext(ctx, method, u.String(), body)
}

// Do sends req. Transport failures are returned as *clienterr.TransportError
// and non-2xx responses as *clienterr.ResponseError, in which case the body
// has already been read and closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		cause := err
		if errors.As(err, &uerr) {
			cause = uerr.Err
		}
		return nil, &clienterr.TransportError{
			Client: c.name,
			Method: req.Method,
			URL:    sanitizeURL(req.URL),
			Kind:   clienterr.Classify(cause),
			Err:    cause,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, clienterr.MaxBodyExcerpt))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &clienterr.ResponseError{
			Client:     c.name,
			Method:     req.Method,
			URL:        sanitizeURL(req.URL),
			StatusCode: resp.StatusCode,
			Body:       excerpt,
		}
	}

	return resp, nil
}

// Get sends a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// DoJSON sends in (when not nil) as a JSON body and decodes the response
// into out (when not nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client %q: encode request: %w", c.name, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client %q: decode response: %w", c.name, err)
	}
	return nil
}
