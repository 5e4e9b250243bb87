package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/claudeway/claudeway/internal/errs"
	"github.com/claudeway/claudeway/internal/openai"
)

// maxErrorBody bounds how much of an upstream error body is read for the
// client-visible message.
const maxErrorBody = 8 * 1024

// Target is one upstream endpoint with its credentials.
type Target struct {
	BaseURL     string
	APIPath     string
	BearerToken string
}

// URL returns the full request URL.
func (t Target) URL() string {
	return strings.TrimSuffix(t.BaseURL, "/") + t.APIPath
}

// Client issues streaming chat-completions requests. It applies a connect
// timeout only; read timeouts are disabled because a healthy stream can be
// quiet for long stretches while the model thinks.
type Client struct {
	http       *http.Client
	log        *zap.Logger
	maxRetries uint64
}

// NewClient builds a client with the given connect timeout.
func NewClient(connectTimeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   connectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost:   8,
				ResponseHeaderTimeout: 0,
			},
		},
		log:        log,
		maxRetries: 2,
	}
}

// OpenStream POSTs the payload and returns the response body for streaming.
// Connection failures are retried with exponential backoff; HTTP-level
// errors are mapped onto the gateway taxonomy and never retried. The caller
// must close the returned body; canceling ctx closes the connection.
func (c *Client) OpenStream(ctx context.Context, target Target, payload *openai.ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Newf(errs.KindTranslator, "encode upstream request: %v", err)
	}

	var out io.ReadCloser
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL(), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errs.Newf(errs.KindConnection, "build upstream request: %v", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+target.BearerToken)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(errs.Newf(errs.KindConnection, "upstream request canceled: %v", ctx.Err()))
			}
			c.log.Warn("upstream connection failed, retrying",
				zap.String("url", target.URL()),
				zap.Error(err))
			return errs.Newf(errs.KindConnection, "connect to upstream: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return backoff.Permanent(mapStatus(resp.StatusCode, raw, resp.Header.Get("Retry-After")))
		}
		out = resp.Body
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		return nil, err
	}
	return out, nil
}

// Do issues one request through the client's transport, so callers that
// bypass translation still get the connect timeout and keep-alive
// settings. Network failures are mapped onto the gateway taxonomy; the
// caller owns the response status.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Newf(errs.KindConnection, "upstream request: %v", err)
	}
	return resp, nil
}

// mapStatus translates an upstream HTTP failure into a gateway error.
func mapStatus(status int, body []byte, retryAfter string) *errs.Error {
	msg := upstreamMessage(body)
	lower := strings.ToLower(msg)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.Newf(errs.KindAuth, "upstream rejected credentials: %s", msg)
	case status == http.StatusNotFound && strings.Contains(lower, "model"):
		return errs.Newf(errs.KindModelNotFound, "upstream does not serve the requested model: %s", msg)
	case status == http.StatusBadRequest &&
		(strings.Contains(lower, "tool") || strings.Contains(lower, "not supported")):
		return errs.Newf(errs.KindCapability, "upstream rejected a capability: %s", msg)
	case status == http.StatusBadRequest:
		return errs.Newf(errs.KindInvalidRequest, "upstream rejected the request: %s", msg)
	case status == http.StatusTooManyRequests:
		e := errs.Newf(errs.KindRateLimited, "upstream rate limit: %s", msg)
		e.RetryAfter = retryAfter
		return e
	case status >= 500:
		return errs.Newf(errs.KindUpstream, "upstream returned %d: %s", status, msg)
	default:
		return errs.Newf(errs.KindUpstream, "unexpected upstream status %d: %s", status, msg)
	}
}

// upstreamMessage pulls the human message out of an OpenAI error envelope,
// falling back to the raw body.
func upstreamMessage(body []byte) string {
	var envelope openai.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "(empty body)"
	}
	return fmt.Sprintf("%.256s", trimmed)
}
