// Package remote sends SQL queries to the metadata service's Atelier-style
// action/query endpoint and decodes the envelope into typed rows.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"clslens/internal/connections"
	"clslens/internal/version"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// Default values for the query client
const (
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB
	DefaultAPIVersion  = 1
	RequestIDHeader    = "X-Request-ID"
)

// Outcome labels reported to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeEmpty     = "empty"
	OutcomeServer    = "server_error"
	OutcomeTransport = "transport_error"
	OutcomeDecode    = "decode_error"
)

// Observer receives one call per finished query.
type Observer interface {
	ObserveQuery(name, outcome string, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	MaxBodySize int64
	APIVersion  int
	// Timeout bounds each request when the descriptor sets none.
	Timeout  time.Duration
	Observer Observer
	// Transport overrides the HTTP transport, e.g. in tests.
	Transport http.RoundTripper
}

// Client executes queries. It keeps session cookies per server so that
// authenticated sessions are reused across requests. No request is retried.
type Client struct {
	http     *http.Client
	maxBody  int64
	apiVer   int
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// NewClient creates a query client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.APIVersion <= 0 {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = connections.DefaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		http: &http.Client{
			Jar:       jar,
			Transport: transport,
		},
		maxBody:  opts.MaxBodySize,
		apiVer:   opts.APIVersion,
		timeout:  opts.Timeout,
		observer: opts.Observer,
		logger:   logger,
	}
}

// Endpoint returns the action/query URL for a server.
func (c *Client) Endpoint(conn connections.Descriptor) string {
	return conn.BaseURL() + "/api/atelier/v" + strconv.Itoa(c.apiVer) + "/" +
		url.PathEscape(conn.Namespace) + "/action/query"
}

// Query runs req against conn. A response whose status.errors is non-empty
// is returned as a *QueryError of kind ServerFailure; zero rows with no
// errors is a successful, empty ResultSet.
func (c *Client) Query(ctx context.Context, conn connections.Descriptor, req Request) (*ResultSet, error) {
	start := time.Now()
	rs, err := c.query(ctx, conn, req)
	elapsed := time.Since(start)

	outcome := OutcomeOK
	if err != nil {
		outcome = outcomeOf(err)
		c.logger.Warn("Query failed",
			"query", req.Name,
			"server", conn.Name,
			"duration", elapsed,
			"error", err.Error(),
		)
	} else {
		if rs.Len() == 0 {
			outcome = OutcomeEmpty
		}
		c.logger.Debug("Query finished",
			"query", req.Name,
			"server", conn.Name,
			"rows", rs.Len(),
			"duration", elapsed,
		)
	}
	if c.observer != nil {
		c.observer.ObserveQuery(req.Name, outcome, elapsed)
	}
	return rs, err
}

func outcomeOf(err error) string {
	qe, ok := err.(*QueryError)
	if !ok {
		return OutcomeTransport
	}
	switch qe.Kind {
	case ServerFailure:
		return OutcomeServer
	case DecodeFailure:
		return OutcomeDecode
	default:
		return OutcomeTransport
	}
}

func (c *Client) query(ctx context.Context, conn connections.Descriptor, req Request) (*ResultSet, error) {
	fail := func(kind ErrorKind, status int, cause error) *QueryError {
		return &QueryError{Kind: kind, Query: req.Name, Server: conn.Name, StatusCode: status, cause: cause}
	}

	if req.Parameters == nil {
		req.Parameters = []interface{}{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("failed to marshal request body: %w", err))
	}

	timeout := c.timeout
	if conn.Timeout.Duration > 0 {
		timeout = conn.Timeout.Duration
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(conn), bytes.NewReader(body))
	if err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	if user := conn.User(); user != "" {
		if pw, ok := conn.Secret(); ok {
			httpReq.SetBasicAuth(user, pw)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fail(TransportFailure, 0, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := c.readBody(resp)
	if err != nil {
		return nil, fail(TransportFailure, resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 {
		qe := fail(TransportFailure, resp.StatusCode, fmt.Errorf("%s", http.StatusText(resp.StatusCode)))
		// error bodies often carry the same envelope
		if env, err := decodeEnvelope(data); err == nil {
			qe.Messages = env.ErrorMessages()
		}
		return nil, qe
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, fail(DecodeFailure, resp.StatusCode, err)
	}
	if msgs := env.ErrorMessages(); len(msgs) > 0 {
		qe := fail(ServerFailure, resp.StatusCode, nil)
		qe.Messages = msgs
		return nil, qe
	}

	return &ResultSet{Rows: env.Result.Content}, nil
}

// readBody reads at most maxBody bytes, inflating gzip responses.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("response exceeds %d bytes", c.maxBody)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var env Response
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid response envelope: %w", err)
	}
	return &env, nil
}
