// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply  *schema.Message
	chunks []*schema.Message
	err   error
	tools []*schema.ToolInfo
	calls int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.chunks) > 0 {
		return schema.StreamReaderFromArray(f.chunks), nil
	}
	return schema.StreamReaderFromArray([]*schema.Message{f.reply}), nil
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &fakeChatModel{reply: f.reply, err: f.err, tools: tools}, nil
}

var testRef = ModelRef{Provider: "ollama", Key: "llama3_groq_tool_use", Name: "llama3-groq-tool-use:8b"}

func TestRateLimitedChatModel_Generate(t *testing.T) {
	reply := schema.AssistantMessage("4", nil)
	reply.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 12, CompletionTokens: 1, TotalTokens: 13}}
	inner := &fakeChatModel{reply: reply}
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{"ollama": {MaxConcurrent: 1, TokensPerMinute: 6000}}, nil)
	m := NewRateLimitedChatModel(inner, testRef, limiter, nil)

	out, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("What is 2+2?")})
	require.NoError(t, err)
	assert.Equal(t, "4", out.Content)
	assert.Equal(t, 1, inner.calls)

	stats := limiter.GetStats("ollama")
	assert.Equal(t, 13, stats["tokens_used_minute"])
	assert.Equal(t, 0, stats["current_concurrent"])
}

func TestRateLimitedChatModel_GenerateError(t *testing.T) {
	inner := &fakeChatModel{err: errors.New("connection refused")}
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{"ollama": {MaxConcurrent: 1}}, nil)
	m := NewRateLimitedChatModel(inner, testRef, limiter, nil)

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.EqualError(t, err, "connection refused")
	assert.Equal(t, 0, limiter.GetStats("ollama")["current_concurrent"])
}

func TestRateLimitedChatModel_WithTools(t *testing.T) {
	inner := &fakeChatModel{reply: schema.AssistantMessage("ok", nil)}
	m := NewRateLimitedChatModel(inner, testRef, nil, nil)

	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "duckduckgo_search", Desc: "search"}})
	require.NoError(t, err)
	wrapped, ok := bound.(*RateLimitedChatModel)
	require.True(t, ok)
	assert.Equal(t, testRef, wrapped.Ref())
	innerBound := wrapped.inner.(*fakeChatModel)
	require.Len(t, innerBound.tools, 1)
	assert.Equal(t, "duckduckgo_search", innerBound.tools[0].Name)
}

func TestRateLimitedChatModel_Stream(t *testing.T) {
	inner := &fakeChatModel{reply: schema.AssistantMessage("streamed", nil)}
	m := NewRateLimitedChatModel(inner, testRef, nil, nil)
	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()
	msg, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, "streamed", msg.Content)
}

func TestRateLimitedChatModel_StreamHoldsSlotUntilDrained(t *testing.T) {
	last := schema.AssistantMessage("c", nil)
	last.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13}}
	inner := &fakeChatModel{chunks: []*schema.Message{
		schema.AssistantMessage("a", nil),
		schema.AssistantMessage("b", nil),
		last,
	}}
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{"ollama": {MaxConcurrent: 1, TokensPerMinute: 6000}}, nil)
	m := NewRateLimitedChatModel(inner, testRef, limiter, nil)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.GetStats("ollama")["current_concurrent"])

	var got string
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += chunk.Content
	}
	sr.Close()
	assert.Equal(t, "abc", got)

	stats := limiter.GetStats("ollama")
	assert.Equal(t, 0, stats["current_concurrent"])
	assert.Equal(t, 13, stats["tokens_used_minute"])
}

func TestRateLimitedChatModel_StreamError(t *testing.T) {
	inner := &fakeChatModel{err: errors.New("connection refused")}
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{"ollama": {MaxConcurrent: 1}}, nil)
	m := NewRateLimitedChatModel(inner, testRef, limiter, nil)

	_, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.EqualError(t, err, "connection refused")
	assert.Equal(t, 0, limiter.GetStats("ollama")["current_concurrent"])
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(nil))
	msgs := []*schema.Message{schema.UserMessage("12345678"), schema.AssistantMessage("", []schema.ToolCall{{
		Function: schema.FunctionCall{Name: "duckduckgo_search", Arguments: `{"q":"x"}`},
	}})}
	assert.Equal(t, (8+9)/4, estimateTokens(msgs))
}
