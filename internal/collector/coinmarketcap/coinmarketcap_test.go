package coinmarketcap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/cmc/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures requests and answers with a canned response.
type recordingTransport struct {
	mu          sync.Mutex
	requests    []*http.Request
	contentType string
	body        string
	status      int
	err         error
}

func (rt *recordingTransport) Do(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.requests = append(rt.requests, req)
	rt.mu.Unlock()

	if rt.err != nil {
		return nil, rt.err
	}

	status := rt.status
	if status == 0 {
		status = http.StatusOK
	}
	header := make(http.Header)
	if rt.contentType != "" {
		header.Set("Content-Type", rt.contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(rt.body)),
		Request:    req,
	}, nil
}

func (rt *recordingTransport) lastURL(t *testing.T) string {
	t.Helper()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.Len(t, rt.requests, 1, "expected exactly one request")
	return rt.requests[0].URL.String()
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveUpstream(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, endpoint+":"+outcome)
}

func TestClient_Endpoints(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		expected string
	}{
		{
			name: "ticker",
			call: func(c *Client) error {
				_, err := c.Ticker(context.Background(), 10, 100, "USD")
				return err
			},
			expected: "https://example.com/ticker/?start=10&limit=100&convert=USD",
		},
		{
			name: "ticker for id",
			call: func(c *Client) error {
				_, err := c.TickerFor(context.Background(), "bitcoin", 10, 100, "USD")
				return err
			},
			expected: "https://example.com/ticker/bitcoin/?start=10&limit=100&convert=USD",
		},
		{
			name: "global data",
			call: func(c *Client) error {
				_, err := c.GlobalData(context.Background(), "USD")
				return err
			},
			expected: "https://example.com/global/?convert=USD",
		},
		{
			name: "ticker defaults",
			call: func(c *Client) error {
				_, err := c.Ticker(context.Background(), 0, 0, "USD")
				return err
			},
			expected: "https://example.com/ticker/?start=0&limit=0&convert=USD",
		},
		{
			name: "convert is form encoded",
			call: func(c *Client) error {
				_, err := c.GlobalData(context.Background(), "A B&C")
				return err
			},
			expected: "https://example.com/global/?convert=A+B%26C",
		},
		{
			name: "convert is not validated",
			call: func(c *Client) error {
				_, err := c.Ticker(context.Background(), 5, 1, "XYZ")
				return err
			},
			expected: "https://example.com/ticker/?start=5&limit=1&convert=XYZ",
		},
		{
			name: "typed tickers",
			call: func(c *Client) error {
				_, err := c.Tickers(context.Background(), core.TickerParams{Start: 1, Limit: 2})
				return err
			},
			expected: "https://example.com/ticker/?start=1&limit=2&convert=USD",
		},
		{
			name: "typed ticker by id",
			call: func(c *Client) error {
				_, err := c.TickerByID(context.Background(), "ethereum", core.TickerParams{Convert: "EUR"})
				return err
			},
			expected: "https://example.com/ticker/ethereum/?start=0&limit=0&convert=EUR",
		},
		{
			name: "typed global",
			call: func(c *Client) error {
				_, err := c.Global(context.Background(), "")
				return err
			},
			expected: "https://example.com/global/?convert=USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingTransport{}
			c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.expected, rt.lastURL(t))
			assert.Equal(t, http.MethodGet, rt.requests[0].Method)
		})
	}
}

func TestClient_DefaultBaseURL(t *testing.T) {
	c := New()
	assert.Equal(t, "https://api.coinmarketcap.com/v1/", c.BaseURL())
}

func TestClient_NonJSONContentType(t *testing.T) {
	rt := &recordingTransport{contentType: "text/plain", body: `{"id":"bitcoin"}`}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

	result, err := c.Ticker(context.Background(), 10, 100, "USD")
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestClient_ContentTypeMustMatchExactly(t *testing.T) {
	rt := &recordingTransport{contentType: "application/json; charset=utf-8", body: `{"id":"bitcoin"}`}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

	result, err := c.GlobalData(context.Background(), "USD")
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClient_JSONObject(t *testing.T) {
	rt := &recordingTransport{contentType: "application/json", body: `{"id":"bitcoin"}`}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

	result, err := c.TickerFor(context.Background(), "bitcoin", 10, 100, "USD")
	require.NoError(t, err)
	assert.Equal(t, Result{"id": "bitcoin"}, result)
}

func TestClient_JSONArrayKeyedByIndex(t *testing.T) {
	rt := &recordingTransport{
		contentType: "application/json",
		body:        `[{"id":"bitcoin"},{"id":"ethereum"}]`,
	}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

	result, err := c.Ticker(context.Background(), 0, 2, "USD")
	require.NoError(t, err)
	assert.Equal(t, Result{
		"0": map[string]any{"id": "bitcoin"},
		"1": map[string]any{"id": "ethereum"},
	}, result)
}

func TestResult_List(t *testing.T) {
	items, ok := Result{"1": "b", "0": "a", "2": "c"}.List()
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, items)

	_, ok = Result{"id": "bitcoin"}.List()
	assert.False(t, ok)

	_, ok = Result{"0": "a", "2": "c"}.List()
	assert.False(t, ok)

	items, ok = Result{}.List()
	assert.True(t, ok)
	assert.Empty(t, items)
}

func TestClient_EmptyAndNullBodies(t *testing.T) {
	for _, body := range []string{"", "  ", "null"} {
		rt := &recordingTransport{contentType: "application/json", body: body}
		c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

		result, err := c.GlobalData(context.Background(), "USD")
		require.NoError(t, err, "body %q", body)
		assert.Empty(t, result, "body %q", body)
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	obs := &recordingObserver{}
	rt := &recordingTransport{contentType: "application/json", body: `{"id":`}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"), WithObserver(obs))

	result, err := c.Ticker(context.Background(), 0, 0, "USD")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, core.ErrDecodeFailed))
	assert.Equal(t, []string{"ticker:decode_error"}, obs.outcomes)
}

func TestClient_StatusCodeIgnored(t *testing.T) {
	rt := &recordingTransport{
		status:      http.StatusNotFound,
		contentType: "application/json",
		body:        `{"error":"id not found"}`,
	}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"))

	result, err := c.TickerFor(context.Background(), "nope", 0, 0, "USD")
	require.NoError(t, err)
	assert.Equal(t, Result{"error": "id not found"}, result)
}

func TestClient_TransportErrorUnmodified(t *testing.T) {
	transportErr := errors.New("dial tcp: lookup example.com: no such host")
	obs := &recordingObserver{}
	rt := &recordingTransport{err: transportErr}
	c := New(WithTransport(rt), WithBaseURL("https://example.com/"), WithObserver(obs))

	result, err := c.GlobalData(context.Background(), "USD")
	assert.Nil(t, result)
	assert.Same(t, transportErr, err)
	assert.Equal(t, []string{"global:transport_error"}, obs.outcomes)
}

func TestClient_RequestBuilderError(t *testing.T) {
	buildErr := errors.New("bad url")
	builder := RequestBuilderFunc(func(ctx context.Context, method, rawURL string) (*http.Request, error) {
		return nil, buildErr
	})
	rt := &recordingTransport{}
	c := New(WithTransport(rt), WithRequestBuilder(builder))

	_, err := c.Ticker(context.Background(), 0, 0, "USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrRequestFailed))
	assert.True(t, errors.Is(err, buildErr))
	assert.Empty(t, rt.requests)
}

func TestClient_CustomRequestBuilder(t *testing.T) {
	var gotMethod, gotURL string
	builder := RequestBuilderFunc(func(ctx context.Context, method, rawURL string) (*http.Request, error) {
		gotMethod, gotURL = method, rawURL
		return http.NewRequestWithContext(ctx, method, rawURL, nil)
	})
	rt := &recordingTransport{}
	c := New(WithTransport(rt), WithRequestBuilder(builder), WithBaseURL("https://example.com/"))

	_, err := c.GlobalData(context.Background(), "EUR")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "https://example.com/global/?convert=EUR", gotURL)
}

func TestHeaderBuilder(t *testing.T) {
	rt := &recordingTransport{}
	builder := HeaderBuilder(map[string]string{"User-Agent": "cmc-test", "Accept": "application/json", "X-Empty": ""})
	c := New(WithTransport(rt), WithRequestBuilder(builder), WithBaseURL("https://example.com/"))

	_, err := c.Ticker(context.Background(), 0, 10, "EUR")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/ticker/?start=0&limit=10&convert=EUR", rt.lastURL(t))

	req := rt.requests[0]
	assert.Equal(t, "cmc-test", req.Header.Get("User-Agent"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	_, present := req.Header["X-Empty"]
	assert.False(t, present)
}

func TestClient_NilBody(t *testing.T) {
	c := New(WithTransport(transportFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
	})))

	result, err := c.GlobalData(context.Background(), "USD")
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClient_ObserverOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	jsonRT := &recordingTransport{contentType: "application/json", body: `{}`}
	c := New(WithTransport(jsonRT), WithObserver(obs))
	_, err := c.Ticker(context.Background(), 0, 0, "USD")
	require.NoError(t, err)

	plain := &recordingTransport{contentType: "text/html"}
	c = New(WithTransport(plain), WithObserver(obs))
	_, err = c.GlobalData(context.Background(), "USD")
	require.NoError(t, err)

	assert.Equal(t, []string{"ticker:ok", "global:non_json"}, obs.outcomes)
}

func TestClient_HTTPServer(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"bitcoin","name":"Bitcoin","symbol":"BTC","rank":"1","price_usd":"6500.5"}]`))
	}))
	defer srv.Close()

	c := New(WithTransport(srv.Client()), WithBaseURL(srv.URL+"/"))

	result, err := c.TickerFor(context.Background(), "bitcoin", 0, 0, "USD")
	require.NoError(t, err)
	assert.Equal(t, "/ticker/bitcoin/", gotPath)
	assert.Equal(t, "start=0&limit=0&convert=USD", gotQuery)
	require.Contains(t, result, "0")

	first, ok := result["0"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bitcoin", first["name"])
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(WithTransport(srv.Client()), WithBaseURL(srv.URL+"/"))
	_, err := c.GlobalData(ctx, "USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_ConcurrentUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"convert":"` + r.URL.Query().Get("convert") + `"}`))
	}))
	defer srv.Close()

	c := New(WithTransport(srv.Client()), WithBaseURL(srv.URL+"/"))

	codes := []string{"USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "SEK"}
	var wg sync.WaitGroup
	errs := make(chan error, len(codes))
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			result, err := c.GlobalData(context.Background(), code)
			if err != nil {
				errs <- err
				return
			}
			if result["convert"] != code {
				errs <- errors.New("mismatched response for " + code)
			}
		}(code)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

type transportFunc func(req *http.Request) (*http.Response, error)

func (f transportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
