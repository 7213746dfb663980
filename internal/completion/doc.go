// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion is the streaming client for OpenAI-compatible chat
// completion services (llama.cpp server, LM Studio, vLLM).
//
// # Wire Format
//
// Requests are a single POST with "stream": true. Responses are SSE lines:
//
//	data: {"choices":[{"delta":{"content":"Hel"}}]}
//	data: {"choices":[{"delta":{"content":"lo"}}]}
//	data: [DONE]
//
// The Decoder reassembles lines across arbitrary network chunk boundaries
// and yields the non-empty delta.content strings. Malformed payloads are
// skipped. A stream that ends without [DONE] is a decode error.
//
// # Errors
//
// Every failure is a *Error with a Kind: network (dial, reset, timeout,
// cancel), server (non-2xx) or decode (oversized line, truncation).
// Use IsNetwork, IsServer, IsDecode or errors.Is with ErrNetwork, ErrServer,
// ErrDecode.
package completion
