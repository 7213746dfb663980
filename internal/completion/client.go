// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/yuki/internal/logging"
	"github.com/jeranaias/yuki/internal/model"
)

// maxErrorBody caps how much of a failed response body is read.
const maxErrorBody = 64 * 1024

// =============================================================================
// CLIENT
// =============================================================================

// Client sends one streaming chat request per call to an OpenAI-compatible
// completion service. It never retries and never pipelines.
//
// Example:
//
//	client := completion.NewClient(completion.SettingsFromConfig(cfg), logger)
//	reply, err := client.Send(ctx, msgs, func(s string) { fmt.Print(s) })
type Client struct {
	settings   func() Settings
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient creates a client with fixed settings.
func NewClient(s Settings, logger logging.Logger) *Client {
	return NewDynamicClient(func() Settings { return s }, logger)
}

// NewDynamicClient creates a client that calls fn at the start of every
// request. Used with config.Reloader.
func NewDynamicClient(fn func() Settings, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{settings: fn, logger: logger}

	// Dial timeout is read per connection so reloads apply.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{
			Timeout:   c.current().ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		return d.DialContext(ctx, network, addr)
	}
	c.httpClient = &http.Client{Transport: transport}
	return c
}

func (c *Client) current() Settings {
	return c.settings().withDefaults()
}

// Model returns the model name the next request will use.
func (c *Client) Model() string {
	return c.current().Model
}

// =============================================================================
// SEND
// =============================================================================

// Send posts messages with streaming enabled, calls sink for every fragment
// in arrival order, and returns the full reply. On error no reply is
// returned; any partial text is on the *Error.
//
// Cancelling ctx aborts the request and surfaces as a network error.
func (c *Client) Send(ctx context.Context, messages []model.Message, sink Sink) (string, error) {
	s := c.current()

	body, err := json.Marshal(chatRequest{
		Model:       s.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "failed to marshal request", Cause: err}
	}

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	reqCtx, cancelDeadline := context.WithTimeoutCause(reqCtx, s.RequestTimeout, ErrRequestTimeout)
	defer cancelDeadline()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debugf(ctx, "POST %s model=%s messages=%d", s.URL, s.Model, len(messages))
	start := time.Now()

	// The header timer covers the gap between a successful dial and the
	// first byte of the response.
	headerTimer := time.AfterFunc(s.ConnectTimeout, func() { cancel(ErrHeaderTimeout) })
	resp, err := c.httpClient.Do(req)
	headerTimer.Stop()
	if err != nil {
		c.logger.Warnf(ctx, "request failed: %v", err)
		return "", networkError(reqCtx, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := serverError(resp)
		c.logger.Warnf(ctx, "server returned %d: %s", resp.StatusCode, serr.Message)
		return "", serr
	}

	reply, err := NewDecoder(s.MaxLineSize).Stream(reqCtx, resp.Body, sink)
	if err != nil {
		c.logger.Warnf(ctx, "stream failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return "", err
	}

	c.logger.Infof(ctx, "reply complete: %d chars in %s", len(reply), time.Since(start).Round(time.Millisecond))
	return reply, nil
}

// =============================================================================
// PING
// =============================================================================

// Models lists the model IDs the service advertises at /v1/models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	s := c.current()

	modelsURL, err := ModelsURL(s.URL)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "invalid server URL", Cause: err}
	}

	ctx, cancel := context.WithTimeoutCause(ctx, s.ConnectTimeout, ErrRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(ctx, "service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serverError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*16))
	if err != nil {
		return nil, networkError(ctx, "failed to read response", err)
	}

	var ids []string
	for _, id := range gjson.GetBytes(data, "data.#.id").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

// Ping checks that the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Models(ctx)
	return err
}

// ModelsURL derives the /v1/models endpoint from a chat completions URL.
func ModelsURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("URL must be absolute")
	}

	path := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(path, "/chat/completions") {
		u.Path = strings.TrimSuffix(path, "/chat/completions") + "/models"
	} else {
		u.Path = "/v1/models"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// serverError builds a KindServer error, pulling error.message (or a bare
// string error) out of the body when present.
func serverError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := ""
	if gjson.ValidBytes(data) {
		if m := gjson.GetBytes(data, "error.message"); m.Type == gjson.String {
			msg = m.Str
		} else if m := gjson.GetBytes(data, "error"); m.Type == gjson.String {
			msg = m.Str
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Kind: KindServer, StatusCode: resp.StatusCode, Message: msg}
}

// networkError wraps err, substituting the context cause when the request
// was cancelled or timed out.
func networkError(ctx context.Context, msg string, err error) *Error {
	if ctx.Err() != nil {
		err = contextCause(ctx)
	}
	return &Error{Kind: KindNetwork, Message: msg, Cause: err}
}

// IsCanceled reports whether err comes from the caller cancelling the
// request, as opposed to a timeout or a connection failure.
func IsCanceled(err error) bool {
	return IsNetwork(err) && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a connect, header or request timeout.
func IsTimeout(err error) bool {
	if !IsNetwork(err) {
		return false
	}
	if errors.Is(err, ErrHeaderTimeout) || errors.Is(err, ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
