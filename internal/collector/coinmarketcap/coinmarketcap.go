package coinmarketcap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c9s/requestgen"
	"github.com/newthinker/cmc/internal/core"
	"go.uber.org/zap"
)

const (
	// BaseURL is the production endpoint of the public v1 API.
	BaseURL = "https://api.coinmarketcap.com/v1/"

	contentTypeJSON = "application/json"
	defaultTimeout  = 10 * time.Second
)

// Endpoint labels used for logging and metrics
const (
	EndpointTicker   = "ticker"
	EndpointTickerID = "ticker_id"
	EndpointGlobal   = "global"
)

// Call outcomes reported to the Observer
const (
	OutcomeOK             = "ok"
	OutcomeNonJSON        = "non_json"
	OutcomeRequestError   = "request_error"
	OutcomeTransportError = "transport_error"
	OutcomeReadError      = "read_error"
	OutcomeDecodeError    = "decode_error"
)

// Transport sends a request and returns its response. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestBuilder constructs a request from a method and an absolute URL.
type RequestBuilder interface {
	NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error)
}

// RequestBuilderFunc adapts a function to RequestBuilder.
type RequestBuilderFunc func(ctx context.Context, method, rawURL string) (*http.Request, error)

// NewRequest calls f.
func (f RequestBuilderFunc) NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	return f(ctx, method, rawURL)
}

// DefaultRequestBuilder builds plain requests with http.NewRequestWithContext.
var DefaultRequestBuilder RequestBuilder = RequestBuilderFunc(
	func(ctx context.Context, method, rawURL string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, method, rawURL, nil)
	},
)

// HeaderBuilder returns a RequestBuilder that sets headers on every request
// built by DefaultRequestBuilder.
func HeaderBuilder(headers map[string]string) RequestBuilder {
	return RequestBuilderFunc(func(ctx context.Context, method, rawURL string) (*http.Request, error) {
		req, err := DefaultRequestBuilder.NewRequest(ctx, method, rawURL)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}
		return req, nil
	})
}

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(endpoint, outcome string, duration time.Duration)
}

// Result is the decoded payload of a JSON response.
type Result map[string]any

// List returns the values of a Result decoded from a JSON array, in array
// order. ok is false when the keys are not exactly "0" to len-1.
func (r Result) List() (items []any, ok bool) {
	items = make([]any, len(r))
	for i := range items {
		v, found := r[strconv.Itoa(i)]
		if !found {
			return nil, false
		}
		items[i] = v
	}
	return items, true
}

// Client is a read-only handle on the v1 API. It never mutates itself after
// construction and is safe for concurrent use.
type Client struct {
	transport Transport
	builder   RequestBuilder
	baseURL   string
	logger    *zap.Logger
	observer  Observer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. A trailing slash is expected.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTransport sets the transport used to send requests.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithRequestBuilder sets the builder used to construct requests.
func WithRequestBuilder(b RequestBuilder) Option {
	return func(c *Client) {
		if b != nil {
			c.builder = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithObserver sets the upstream call observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a client. Without options it talks to BaseURL through an
// http.Client with a 10s timeout.
func New(opts ...Option) *Client {
	c := &Client{
		transport: &http.Client{Timeout: defaultTimeout},
		builder:   DefaultRequestBuilder,
		baseURL:   BaseURL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ticker lists tickers ranked from start, at most limit of them (0 returns all),
// with monetary figures expressed in convert.
func (c *Client) Ticker(ctx context.Context, start, limit int, convert string) (Result, error) {
	return c.getResult(ctx, EndpointTicker, "ticker/?"+tickerQuery(start, limit, convert))
}

// TickerFor fetches the ticker of a single asset. id is used as given.
func (c *Client) TickerFor(ctx context.Context, id string, start, limit int, convert string) (Result, error) {
	return c.getResult(ctx, EndpointTickerID, "ticker/"+id+"/?"+tickerQuery(start, limit, convert))
}

// GlobalData fetches the market summary across all tracked assets.
func (c *Client) GlobalData(ctx context.Context, convert string) (Result, error) {
	return c.getResult(ctx, EndpointGlobal, "global/?"+globalQuery(convert))
}

// tickerQuery encodes start, limit and convert in that order.
func tickerQuery(start, limit int, convert string) string {
	var b strings.Builder
	b.WriteString("start=")
	b.WriteString(url.QueryEscape(strconv.Itoa(start)))
	b.WriteString("&limit=")
	b.WriteString(url.QueryEscape(strconv.Itoa(limit)))
	b.WriteString("&convert=")
	b.WriteString(url.QueryEscape(convert))
	return b.String()
}

func globalQuery(convert string) string {
	return "convert=" + url.QueryEscape(convert)
}

func (c *Client) getResult(ctx context.Context, endpoint, path string) (Result, error) {
	start := time.Now()

	resp, err := c.get(ctx, endpoint, path, start)
	if err != nil {
		return nil, err
	}

	result, err := parseJSONResponse(resp)
	c.finish(endpoint, resp, start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// get sends a GET to baseURL+path and buffers the whole body. Transport errors
// are returned as they are.
func (c *Client) get(ctx context.Context, endpoint, path string, start time.Time) (*requestgen.Response, error) {
	rawURL := c.baseURL + path

	req, err := c.builder.NewRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		c.fail(endpoint, rawURL, OutcomeRequestError, start, err)
		return nil, core.WrapError(core.ErrRequestFailed, err)
	}

	httpResp, err := c.transport.Do(req)
	if err != nil {
		c.fail(endpoint, rawURL, OutcomeTransportError, start, err)
		return nil, err
	}
	if httpResp.Body == nil {
		httpResp.Body = http.NoBody
	}
	defer httpResp.Body.Close()

	resp, err := requestgen.NewResponse(httpResp)
	if err != nil {
		c.fail(endpoint, rawURL, OutcomeReadError, start, err)
		return nil, core.WrapError(core.ErrResponseRead, err)
	}

	c.logger.Debug("coinmarketcap response",
		zap.String("endpoint", endpoint),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", contentType(resp)),
		zap.Int("bytes", len(resp.Body)),
	)
	return resp, nil
}

func (c *Client) fail(endpoint, rawURL, outcome string, start time.Time, err error) {
	c.logger.Warn("coinmarketcap request failed",
		zap.String("endpoint", endpoint),
		zap.String("url", rawURL),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
	c.observe(endpoint, outcome, start)
}

func (c *Client) finish(endpoint string, resp *requestgen.Response, start time.Time, err error) {
	switch {
	case err != nil:
		c.logger.Warn("coinmarketcap decode failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		c.observe(endpoint, OutcomeDecodeError, start)
	case !isJSON(resp):
		c.observe(endpoint, OutcomeNonJSON, start)
	default:
		c.observe(endpoint, OutcomeOK, start)
	}
}

func (c *Client) observe(endpoint, outcome string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveUpstream(endpoint, outcome, time.Since(start))
}

// contentType joins every Content-Type value the way a header line would.
func contentType(resp *requestgen.Response) string {
	return strings.Join(resp.Header.Values("Content-Type"), ", ")
}

// isJSON requires the Content-Type to be exactly application/json, no parameters.
func isJSON(resp *requestgen.Response) bool {
	return contentType(resp) == contentTypeJSON
}

// parseJSONResponse decodes a JSON body into a Result. Non-JSON content yields
// an empty Result. A top-level array is keyed by element index, and a scalar
// ends up under key "0".
func parseJSONResponse(resp *requestgen.Response) (Result, error) {
	if !isJSON(resp) || len(strings.TrimSpace(string(resp.Body))) == 0 {
		return Result{}, nil
	}

	var v any
	if err := resp.DecodeJSON(&v); err != nil {
		return nil, core.WrapError(core.ErrDecodeFailed, err)
	}

	switch data := v.(type) {
	case map[string]any:
		return Result(data), nil
	case []any:
		result := make(Result, len(data))
		for i, item := range data {
			result[strconv.Itoa(i)] = item
		}
		return result, nil
	case nil:
		return Result{}, nil
	default:
		return Result{"0": data}, nil
	}
}

// decodeTyped fetches path and decodes a JSON body into out. out is left
// untouched when the response is not JSON.
func (c *Client) decodeTyped(ctx context.Context, endpoint, path string, out any) error {
	start := time.Now()

	resp, err := c.get(ctx, endpoint, path, start)
	if err != nil {
		return err
	}

	if isJSON(resp) && len(strings.TrimSpace(string(resp.Body))) > 0 {
		if decodeErr := resp.DecodeJSON(out); decodeErr != nil {
			err = core.WrapError(core.ErrDecodeFailed, fmt.Errorf("%s: %w", endpoint, decodeErr))
		}
	}

	c.finish(endpoint, resp, start, err)
	return err
}
