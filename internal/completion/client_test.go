// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yuki/internal/model"
)

func delta(s string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", s)
}

// streamServer writes each part and flushes between them.
func streamServer(t *testing.T, parts ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range parts {
			io.WriteString(w, p)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSettings(url string) Settings {
	return Settings{URL: url + "/v1/chat/completions", Model: "local"}
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_RequestShape(t *testing.T) {
	var got struct {
		Model       string          `json:"model"`
		Messages    []model.Message `json:"messages"`
		Stream      bool            `json:"stream"`
		Temperature *float64        `json:"temperature"`
		MaxTokens   *int            `json:"max_tokens"`
	}
	var headers http.Header
	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, delta("ok")+"data: [DONE]\n")
	}))
	defer srv.Close()

	client := NewClient(testSettings(srv.URL), nil)
	msgs := []model.Message{model.NewSystemMessage("memory"), model.NewUserMessage("hi")}

	reply, err := client.Send(context.Background(), msgs, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "local", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, msgs, got.Messages)
	assert.Nil(t, got.Temperature, "temperature omitted when unset")
	assert.Nil(t, got.MaxTokens, "max_tokens omitted when unset")

	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", headers.Get("Accept"))
	assert.Equal(t, "no-cache", headers.Get("Cache-Control"))
	assert.NotEmpty(t, headers.Get("X-Request-ID"))
}

func TestSend_OptionalSamplingFields(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	temp := 0.6
	s := testSettings(srv.URL)
	s.Temperature = &temp
	s.MaxTokens = 256

	reply, err := NewClient(s, nil).Send(context.Background(), []model.Message{model.NewUserMessage("x")}, nil)
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.InDelta(t, 0.6, raw["temperature"], 1e-9)
	assert.EqualValues(t, 256, raw["max_tokens"])
}

func TestSend_StreamsFragmentsAcrossFlushes(t *testing.T) {
	srv := streamServer(t,
		"data: {\"choices\":[{\"del",
		"ta\":{\"content\":\"Hel\"}}]}\n",
		delta("lo"),
		"data: [DONE]\n",
	)

	var frags []string
	reply, err := NewClient(testSettings(srv.URL), nil).Send(context.Background(),
		[]model.Message{model.NewUserMessage("hi")},
		func(s string) { frags = append(frags, s) })

	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
	assert.Equal(t, []string{"Hel", "lo"}, frags)
}

func TestSend_ServerError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"openai error object", 400, `{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`, "context length exceeded"},
		{"string error", 503, `{"error":"model loading"}`, "model loading"},
		{"plain text", 500, "boom", "boom"},
		{"empty body", 404, "", "Not Found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			reply, err := NewClient(testSettings(srv.URL), nil).Send(context.Background(),
				[]model.Message{model.NewUserMessage("hi")}, nil)

			require.Error(t, err)
			assert.Empty(t, reply)
			assert.True(t, IsServer(err))
			assert.Equal(t, tc.status, StatusCode(err))

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tc.message, e.Message)
		})
	}
}

func TestSend_TruncatedStreamIsDecodeError(t *testing.T) {
	srv := streamServer(t, delta("partial"))

	var frags []string
	reply, err := NewClient(testSettings(srv.URL), nil).Send(context.Background(),
		[]model.Message{model.NewUserMessage("hi")},
		func(s string) { frags = append(frags, s) })

	require.Error(t, err)
	assert.Empty(t, reply)
	assert.True(t, IsDecode(err))
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, []string{"partial"}, frags)
}

func TestSend_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewClient(testSettings("http://"+addr), nil).Send(context.Background(),
		[]model.Message{model.NewUserMessage("hi")}, nil)

	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.False(t, IsCanceled(err))
}

func TestSend_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s := testSettings(srv.URL)
	s.ConnectTimeout = 50 * time.Millisecond

	_, err := NewClient(s, nil).Send(context.Background(), []model.Message{model.NewUserMessage("hi")}, nil)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, ErrHeaderTimeout)
}

func TestSend_RequestDeadlineMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, delta("slow"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s := testSettings(srv.URL)
	s.RequestTimeout = 100 * time.Millisecond

	_, err := NewClient(s, nil).Send(context.Background(), []model.Message{model.NewUserMessage("hi")}, nil)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.ErrorIs(t, err, ErrRequestTimeout)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "slow", e.Partial)
}

func TestSend_CallerCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, delta("a"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := NewClient(testSettings(srv.URL), nil).Send(ctx,
		[]model.Message{model.NewUserMessage("hi")},
		func(string) { cancel() })

	require.Error(t, err)
	assert.True(t, IsCanceled(err))
}

func TestSend_DynamicSettings(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		models = append(models, body.Model)
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	var current atomic.Value
	current.Store(testSettings(srv.URL))
	client := NewDynamicClient(func() Settings { return current.Load().(Settings) }, nil)

	msgs := []model.Message{model.NewUserMessage("hi")}
	_, err := client.Send(context.Background(), msgs, nil)
	require.NoError(t, err)

	next := testSettings(srv.URL)
	next.Model = "reloaded"
	current.Store(next)
	_, err = client.Send(context.Background(), msgs, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"local", "reloaded"}, models)
	assert.Equal(t, "reloaded", client.Model())
}

// =============================================================================
// PING TESTS
// =============================================================================

func TestModelsURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://127.0.0.1:8080/v1/chat/completions", "http://127.0.0.1:8080/v1/models"},
		{"http://host/api/v1/chat/completions/", "http://host/api/v1/models"},
		{"https://host:1234/custom", "https://host:1234/v1/models"},
	}
	for _, tc := range tests {
		got, err := ModelsURL(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ModelsURL("not a url")
	assert.Error(t, err)
}

func TestModelsAndPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"object":"list","data":[{"id":"qwen"},{"id":"llama"}]}`)
	}))
	defer srv.Close()

	client := NewClient(testSettings(srv.URL), nil)
	ids, err := client.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen", "llama"}, ids)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestPing_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = NewClient(testSettings("http://"+addr), nil).Ping(context.Background())
	assert.True(t, IsNetwork(err))
}
