// Package gateway is the HTTP client for the Keygen licensing API. It
// issues exactly the calls the activation and heartbeat lifecycle needs and
// maps every failure onto *errors.GatewayError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"licensebeat/internal/errors"
	"licensebeat/internal/infrastructure"
)

// Client talks to one licensing account.
type Client struct {
	accountURL string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
	requests   metric.Int64Counter
	latency    metric.Float64Histogram
	logger     *slog.Logger
	validate   *validator.Validate
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit paces outgoing requests. Requests wait for a token; they
// only fail if the context ends first.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTracer sets the tracer used for per-call spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMeter records request counts and latency on meter
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		c.requests, _ = meter.Int64Counter("licensebeat_gateway_requests_total",
			metric.WithDescription("Requests sent to the licensing service"))
		c.latency, _ = meter.Float64Histogram("licensebeat_gateway_request_duration_seconds",
			metric.WithDescription("Licensing service round trip time"),
			metric.WithUnit("s"))
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the account rooted at accountURL,
// e.g. https://api.keygen.sh/v1/accounts/<id>.
func NewClient(accountURL string, opts ...Option) *Client {
	c := &Client{
		accountURL: strings.TrimRight(accountURL, "/"),
		userAgent:  "licensebeat",
		// No client-side timeout; failures surface from the service or ctx.
		httpClient: &http.Client{},
		tracer:     tracenoop.NewTracerProvider().Tracer(infrastructure.InstrumentationName),
		logger:     slog.Default(),
		validate:   validator.New(),
	}
	WithMeter(metricnoop.NewMeterProvider().Meter(infrastructure.InstrumentationName))(c)

	for _, opt := range opts {
		opt(c)
	}
	c.logger = infrastructure.WithComponent(c.logger, "gateway")
	return c
}

// call describes one exchange with the service
type call struct {
	op     string
	method string
	path   string
	// key authenticates as the license; empty sends no Authorization header
	key  string
	body interface{}
	// delete exchanges succeed on any 2xx without reading the body
	delete bool
}

// do performs c and decodes the response envelope. The returned document
// is nil for successful deletes.
func (c *Client) do(ctx context.Context, cl call) (*document, error) {
	ctx, span := c.tracer.Start(ctx, "gateway."+cl.op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", cl.method),
			attribute.String("licensing.operation", cl.op),
		))
	defer span.End()

	start := time.Now()
	doc, status, err := c.exchange(ctx, cl)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(
		attribute.String("operation", cl.op),
		attribute.Bool("success", err == nil),
	)
	c.requests.Add(ctx, 1, attrs)
	c.latency.Record(ctx, elapsed.Seconds(), attrs)

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.DebugContext(ctx, "licensing request failed",
			slog.String("operation", cl.op),
			slog.Int("status_code", status),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.DebugContext(ctx, "licensing request completed",
		slog.String("operation", cl.op),
		slog.Int("status_code", status),
		slog.Duration("duration", elapsed),
	)
	return doc, nil
}

func (c *Client) exchange(ctx context.Context, cl call) (*document, int, error) {
	fail := func(status int, cause error) (*document, int, error) {
		return nil, status, &errors.GatewayError{Operation: cl.op, StatusCode: status, Cause: cause}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(0, fmt.Errorf("rate limiter: %w", err))
		}
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fail(0, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.accountURL+cl.path, body)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Accept", MediaType)
	req.Header.Set("User-Agent", c.userAgent)
	if cl.body != nil {
		req.Header.Set("Content-Type", MediaType)
	}
	if cl.key != "" {
		req.Header.Set("Authorization", "License "+cl.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if cl.delete && success {
		return nil, resp.StatusCode, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	var doc document
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			if success {
				return fail(resp.StatusCode, fmt.Errorf("failed to parse response: %w", err))
			}
			return nil, resp.StatusCode, &errors.GatewayError{Operation: cl.op, StatusCode: resp.StatusCode}
		}
	}

	// An errors member means failure whatever the status says.
	if len(doc.Errors) > 0 {
		return nil, resp.StatusCode, &errors.GatewayError{
			Operation:  cl.op,
			StatusCode: resp.StatusCode,
			Errors:     doc.Errors,
		}
	}
	if !success {
		return nil, resp.StatusCode, &errors.GatewayError{Operation: cl.op, StatusCode: resp.StatusCode}
	}

	return &doc, resp.StatusCode, nil
}

// decodeResource unmarshals the primary data of doc and checks it is a
// resource of the expected type.
func (c *Client) decodeResource(op string, doc *document, typ string) (*resourceObject, error) {
	if doc == nil || len(doc.Data) == 0 || string(doc.Data) == "null" {
		return nil, &errors.GatewayError{Operation: op, StatusCode: http.StatusOK,
			Cause: fmt.Errorf("response has no %s resource", typ)}
	}

	var res resourceObject
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		return nil, &errors.GatewayError{Operation: op, StatusCode: http.StatusOK,
			Cause: fmt.Errorf("failed to parse %s resource: %w", typ, err)}
	}
	if res.Type != typ {
		return nil, &errors.GatewayError{Operation: op, StatusCode: http.StatusOK,
			Cause: fmt.Errorf("expected %s resource, got %q", typ, res.Type)}
	}
	return &res, nil
}

// check validates a decoded domain value against its struct tags
func (c *Client) check(op string, v interface{}) error {
	if err := c.validate.Struct(v); err != nil {
		return &errors.GatewayError{Operation: op, StatusCode: http.StatusOK,
			Cause: fmt.Errorf("invalid resource: %w", err)}
	}
	return nil
}
