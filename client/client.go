// Package client talks to a contentfeed server. Its collections satisfy the
// same contract as the local stores, so services and feeds can run against a
// remote server unchanged.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentfeed_client_requests_total",
		Help: "Requests sent to the contentfeed server by method",
	}, []string{"method"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentfeed_client_retries_total",
		Help: "Requests to the contentfeed server that were retried",
	})
)

// StatusError is a non-2xx answer from the server
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap maps a 404 onto models.ErrNotFound
func (e *StatusError) Unwrap() error {
	if e.Code == fasthttp.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

type Config struct {
	// Base URL of the server, e.g. http://localhost:3000
	BaseURL string

	// Timeout of a single attempt when the context has no deadline
	Timeout time.Duration

	// Give up retrying after this long, zero retries until the context ends
	MaxRetryTime time.Duration

	// Dial overrides how connections are made, tests dial in memory
	Dial fasthttp.DialFunc
}

type Client struct {
	baseURL      string
	http         *fasthttp.Client
	dial         fasthttp.DialFunc
	timeout      time.Duration
	maxRetryTime time.Duration
}

func New(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http: &fasthttp.Client{
			Name: "contentfeed",
			Dial: config.Dial,
		},
		dial:         config.Dial,
		timeout:      timeout,
		maxRetryTime: config.MaxRetryTime,
	}
}

// Collection returns a handle on a remote collection
func (c *Client) Collection(name string) *Collection {
	return &Collection{client: c, name: name}
}

// Health checks that the server answers
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, fasthttp.MethodGet, "/healthz", nil, nil)
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 1.5
	b.MaxElapsedTime = c.maxRetryTime
	return backoff.WithContext(b, ctx)
}

// do sends one request, retrying network errors and 5xx answers. out, when
// set, receives the decoded JSON body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	attempt := func() error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.Header.SetMethod(method)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.SetContentType("application/json")
			req.SetBodyRaw(payload)
		}

		requestsTotal.WithLabelValues(method).Inc()

		var err error
		if deadline, ok := ctx.Deadline(); ok {
			err = c.http.DoDeadline(req, resp, deadline)
		} else {
			err = c.http.DoTimeout(req, resp, c.timeout)
		}
		if err != nil {
			return err
		}

		status := resp.StatusCode()
		if status >= fasthttp.StatusBadRequest {
			statusErr := &StatusError{Code: status, Message: errorMessage(resp.Body())}
			if status >= fasthttp.StatusInternalServerError {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	return backoff.RetryNotify(attempt, c.newBackOff(ctx), func(err error, wait time.Duration) {
		retriesTotal.Inc()
		log.WithFields(log.Fields{
			"method": method,
			"path":   path,
			"wait":   wait,
			"error":  err,
		}).Warn("Retrying request")
	})
}

func errorMessage(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return strings.TrimSpace(string(body))
}

// Collection is a remote document collection
type Collection struct {
	client *Client
	name   string
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) path(suffix string) string {
	return "/v1/collections/" + url.PathEscape(c.name) + suffix
}

func (c *Collection) documentPath(id string) string {
	return c.path("/documents/" + url.PathEscape(id))
}

type documentsResponse struct {
	Records feed.Page `json:"records"`
}

func (c *Collection) Query(ctx context.Context, q query.Query) (feed.Page, error) {
	return c.query(ctx, query.Request{Query: q})
}

// QueryAfter sends the whole cursor record, the server needs no copy of it
func (c *Collection) QueryAfter(ctx context.Context, q query.Query, cursor models.Record) (feed.Page, error) {
	return c.query(ctx, query.Request{Query: q, StartAfter: &cursor})
}

func (c *Collection) query(ctx context.Context, req query.Request) (feed.Page, error) {
	if err := req.Query.Validate(); err != nil {
		return nil, err
	}
	var resp documentsResponse
	if err := c.client.do(ctx, fasthttp.MethodPost, c.path("/query"), req, &resp); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	if resp.Records == nil {
		resp.Records = feed.Page{}
	}
	return resp.Records, nil
}

func (c *Collection) Get(ctx context.Context, id string) (models.Record, error) {
	var record models.Record
	if err := c.client.do(ctx, fasthttp.MethodGet, c.documentPath(id), nil, &record); err != nil {
		return models.Record{}, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	return record, nil
}

func (c *Collection) Set(ctx context.Context, record models.Record) error {
	if err := c.client.do(ctx, fasthttp.MethodPut, c.documentPath(record.ID), record, nil); err != nil {
		return fmt.Errorf("set %s/%s: %w", c.name, record.ID, err)
	}
	return nil
}

func (c *Collection) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := c.client.do(ctx, fasthttp.MethodPatch, c.documentPath(id), fields, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	return nil
}

func (c *Collection) Delete(ctx context.Context, id string) error {
	if err := c.client.do(ctx, fasthttp.MethodDelete, c.documentPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}
