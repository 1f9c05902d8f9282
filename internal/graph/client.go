package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	absauth "github.com/microsoft/kiota-abstractions-go/authentication"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

const (
	// DefaultBaseURL is the Graph v1.0 endpoint.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultTimeout bounds every Graph request.
	DefaultTimeout = 60 * time.Second
)

type (
	tokenKey  struct{}
	statusKey struct{}
)

// Client talks to Microsoft Graph on behalf of a caller-supplied access token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics

	sdk *msgraphsdk.GraphServiceClient
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Graph client backed by the msgraph SDK. The access
// token travels with each call's context, so one client serves every user.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = statusTransport{base: base}

	auth := absauth.NewBaseBearerTokenAuthenticationProvider(contextTokenProvider{})
	adapter, err := msgraphsdk.NewGraphRequestAdapterWithParseNodeFactoryAndSerializationWriterFactoryAndHttpClient(auth, nil, nil, &hc)
	if err != nil {
		return nil, fmt.Errorf("creating graph request adapter: %w", err)
	}
	c.sdk = msgraphsdk.NewGraphServiceClient(adapter)
	adapter.SetBaseUrl(c.baseURL)
	return c, nil
}

// contextTokenProvider hands the SDK the token stored in the request context.
type contextTokenProvider struct{}

func (contextTokenProvider) GetAuthorizationToken(ctx context.Context, _ *url.URL, _ map[string]interface{}) (string, error) {
	token, _ := ctx.Value(tokenKey{}).(string)
	if token == "" {
		return "", apperr.Unauthorized("missing access token")
	}
	return token, nil
}

func (contextTokenProvider) GetAllowedHostsValidator() *absauth.AllowedHostsValidator {
	return &absauth.AllowedHostsValidator{}
}

// statusTransport records the response status for the call that owns the
// request context. The SDK only surfaces statuses for failures.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// call runs one SDK request inside a span, with the token attached to ctx,
// and maps its failure onto the apperr taxonomy. It returns the last HTTP
// status seen, or 0 when no response arrived.
func (c *Client) call(ctx context.Context, operation, accessToken string, fn func(ctx context.Context) error) (int, error) {
	op := "graph." + operation
	ctx, span := instrumentation.StartGraphSpan(ctx, operation)
	defer span.End()

	var status int
	ctx = context.WithValue(ctx, tokenKey{}, accessToken)
	ctx = context.WithValue(ctx, statusKey{}, &status)

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		err = mapError(op, status, err)
	}

	result := instrumentation.StatusSuccess
	if err != nil {
		result = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		c.logger.DebugContext(ctx, "graph request failed",
			logging.Operation(op),
			slog.Int("status", status),
			logging.Err(err))
	}
	c.metrics.RecordGraphOperation(ctx, operation, result, time.Since(start))
	return status, err
}

// mapError turns an SDK error into an *apperr.Error. Non-success statuses and
// transport failures are upstream errors; a failure after a 2xx means the
// body could not be decoded.
func mapError(op string, status int, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if status >= 200 && status < 300 {
		return apperr.Malformed(op, err)
	}

	detail := err
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		if main := odataErr.GetErrorEscaped(); main != nil {
			detail = fmt.Errorf("status %d: %s: %s", status, deref(main.GetCode()), deref(main.GetMessage()))
		}
	} else if status != 0 {
		detail = fmt.Errorf("status %d: %w", status, err)
	}
	return apperr.Upstream(op, status, detail)
}

func emptyResponse(op string) error {
	return apperr.Malformed("graph."+op, errors.New("empty response body"))
}
