package client

import (
	"context"
	"fmt"
	"io"

	"sda-commons/internal/health"
	"sda-commons/internal/http/client/clienterr"
)

// UpstreamCheck returns a health check that GETs path through c. 2xx and 3xx
// responses are healthy.
func UpstreamCheck(c *Client, path string) health.Check {
	return func(ctx context.Context) error {
		resp, err := c.Get(ctx, path)
		if err != nil {
			if re, ok := clienterr.AsResponse(err); ok && re.StatusCode >= 300 && re.StatusCode < 400 {
				return nil
			}
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
}


// FailureReason is a health.Reason for client failures: the transport error
// kind or the upstream status, never the URL or the dial error.
func FailureReason(err error) string {
	if te, ok := clienterr.AsTransport(err); ok {
		return "upstream " + string(te.Kind)
	}
	if re, ok := clienterr.AsResponse(err); ok {
		return fmt.Sprintf("upstream status %d", re.StatusCode)
	}
	return health.DefaultReason(err)
}
