package resilience

import (
	"context"
	"errors"
	"net/http"
)

// HTTPClient routes requests through a circuit breaker. It makes exactly one
// attempt per call; deadlines come from the request context.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
}

// Do executes req once. Transport errors and 5xx responses count as failures
// for the breaker; a 5xx response is still returned to the caller.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil {
		if err := cl.Breaker.Allow(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := cl.Client.Do(req.WithContext(ctx))
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, err == nil && resp.StatusCode < http.StatusInternalServerError)
	}
	return resp, err
}
