// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Message roles, as in the chat completion API.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter produces the assistant's reply to a conversation.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// UpstreamError is a failed DeepSeek call.
type UpstreamError struct {
	// Status is the upstream HTTP status, 0 for transport failures.
	Status int

	// Reason is a short operator-facing explanation.
	Reason string

	Err error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return "deepseek: " + e.Reason
	}
	return fmt.Sprintf("deepseek: %d %s", e.Status, e.Reason)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DeepSeekClient calls the DeepSeek chat completion endpoint through the
// OpenAI-compatible client.
type DeepSeekClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewDeepSeekClient builds a client for cfg.BaseURL + "/v1".
func NewDeepSeekClient(cfg Config) *DeepSeekClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL + "/v1"
	oc.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	return &DeepSeekClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Complete sends a non-streaming completion request.
//
// # Outputs
//
//   - string: Content of the first choice.
//   - error: *UpstreamError classified by HTTP status.
func (d *DeepSeekClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: d.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyUpstream(err)
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Reason: "unexpected response: no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyUpstream maps a client error to an UpstreamError.
func classifyUpstream(err error) *UpstreamError {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case 0:
		return &UpstreamError{Reason: "request failed: " + err.Error(), Err: err}
	case http.StatusUnauthorized:
		return &UpstreamError{Status: status, Reason: "unauthorized: invalid/expired key, wrong project, or unpaid account", Err: err}
	case http.StatusNotFound:
		return &UpstreamError{Status: status, Reason: "endpoint/model: check base URL and model name", Err: err}
	case http.StatusTooManyRequests:
		return &UpstreamError{Status: status, Reason: "rate limit or insufficient credits", Err: err}
	default:
		return &UpstreamError{Status: status, Reason: err.Error(), Err: err}
	}
}

var _ ChatCompleter = (*DeepSeekClient)(nil)
