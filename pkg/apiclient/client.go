package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/forcekit/agents/internal/observability"
	"github.com/forcekit/agents/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Connection supplies request authorization. The SDK never signs
// requests itself; callers bring their own credential handling.
type Connection interface {
	AuthorizeRequest(req *http.Request) error
}

// Response is the outcome of one dispatched request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Request is one logical API call before dispatch.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// dispatcher resolves a request either against the live host or a
// fixture directory. The choice is made once, at client construction.
type dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
	Mode() string
}

// Config holds client construction parameters.
type Config struct {
	// Host is the API origin, e.g. https://api.salesforce.com.
	Host string

	// Connection authorizes live requests. Unused in mock mode.
	Connection Connection

	// MockDir switches the client to fixture replay when non-empty.
	MockDir string

	// RetryCount bounds live retransmissions. Defaults to 3.
	RetryCount int

	// Timeout bounds one live HTTP exchange. Defaults to 120s.
	Timeout time.Duration

	// Logger defaults to the package-global logger when nil.
	Logger *zerolog.Logger
}

// Client routes API calls through a single dispatch strategy.
type Client struct {
	host       string
	dispatcher dispatcher
	logger     zerolog.Logger
}

// New creates a client. A configured fixture root that does not exist
// or is not a directory fails here, before any request is made.
func New(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	var d dispatcher
	if cfg.MockDir != "" {
		md, err := newMockDispatcher(cfg.MockDir, logger)
		if err != nil {
			return nil, err
		}
		d = md
	} else {
		retries := cfg.RetryCount
		if retries == 0 {
			retries = 3
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		d = &liveDispatcher{
			conn:    cfg.Connection,
			retries: retries,
			httpClient: &http.Client{
				Timeout: timeout,
			},
			logger: logger,
		}
	}

	logger.Info().
		Str("host", cfg.Host).
		Str("mode", d.Mode()).
		Msg("API client initialized")

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		dispatcher: d,
		logger:     logger,
	}, nil
}

// Mode reports the active dispatch strategy, "live" or "mock".
func (c *Client) Mode() string {
	return c.dispatcher.Mode()
}

// Get dispatches a GET to the given API path.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post dispatches a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, path, body, nil)
}

// Delete dispatches a DELETE. Headers may carry an end reason.
func (c *Client) Delete(ctx context.Context, path string, headers map[string]string) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, headers)
}

// Do dispatches one request and returns the response body. Non-2xx
// live responses surface as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.NewRequestContext(ctx)
	ctx, span := tracing.StartSpan(
		ctx,
		"agents.apiclient",
		"apiclient.dispatch",
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("dispatch.mode", c.dispatcher.Mode()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	if (method == http.MethodPost || method == http.MethodPut) && len(body) == 0 {
		span.RecordError(ErrMissingBody)
		span.SetStatus(codes.Error, ErrMissingBody.Error())
		return nil, ErrMissingBody
	}

	req := &Request{
		Method:  method,
		URL:     c.host + "/" + strings.TrimLeft(path, "/"),
		Body:    body,
		Headers: headers,
	}

	endpoint := metricEndpoint(path)
	start := time.Now()
	resp, err := c.dispatcher.Dispatch(ctx, req)
	observability.RecordAPIRequest(endpoint, c.dispatcher.Mode(), time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(resp.Body)).
		Msg("Request dispatched")

	return resp.Body, nil
}

// UUIDs, 15/18-char platform IDs, or purely numeric segments.
var idSegment = regexp.MustCompile(`^([0-9a-fA-F-]{8,}|[a-zA-Z0-9]{15,18}|\d+)$`)

// metricEndpoint collapses resource IDs out of a path so metric labels
// stay low-cardinality.
func metricEndpoint(path string) string {
	u, err := url.Parse(path)
	if err == nil {
		path = u.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if idSegment.MatchString(part) {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
