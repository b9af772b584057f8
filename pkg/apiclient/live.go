package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// liveDispatcher performs real HTTP exchanges against the API host.
// Failed attempts are retransmitted up to a fixed count with no
// backoff; retry policy beyond that is out of scope here.
type liveDispatcher struct {
	conn       Connection
	retries    int
	httpClient *http.Client
	logger     zerolog.Logger
}

func (d *liveDispatcher) Mode() string {
	return "live"
}

func (d *liveDispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			d.logger.Debug().
				Int("attempt", attempt).
				Str("url", req.URL).
				Msg("Retrying request")
		}

		resp, err := d.exchange(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Client-side errors and 4xx are not retried; the request
		// will not get better by repeating it.
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode < 500 {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", d.retries, lastErr)
}

func (d *liveDispatcher) exchange(ctx context.Context, req *Request) (*Response, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if d.conn != nil {
		if err := d.conn.AuthorizeRequest(httpReq); err != nil {
			return nil, fmt.Errorf("failed to authorize request: %w", err)
		}
	}

	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &APIError{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: httpResp.StatusCode,
			Body:       body,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
	}, nil
}
