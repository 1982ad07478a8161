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
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/tracing"
)

// RateLimitedChatModel 包装 ToolCallingChatModel：调用前限流，调用后记录耗时、token 用量与 span。
// rateLimiter 为 nil 时只做观测。
type RateLimitedChatModel struct {
	inner       model.ToolCallingChatModel
	ref         ModelRef
	rateLimiter *LLMRateLimiter
	logger      *log.Logger
}

// NewRateLimitedChatModel 创建带限流与观测的 ChatModel
func NewRateLimitedChatModel(inner model.ToolCallingChatModel, ref ModelRef, rateLimiter *LLMRateLimiter, logger *log.Logger) *RateLimitedChatModel {
	if logger == nil {
		logger = log.Nop()
	}
	return &RateLimitedChatModel{inner: inner, ref: ref, rateLimiter: rateLimiter, logger: logger}
}

// Generate 实现 model.BaseChatModel
func (m *RateLimitedChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (out *schema.Message, err error) {
	ctx, span := tracing.StartModelSpan(ctx, m.ref.Provider, m.ref.Name)
	defer func() { tracing.End(span, err) }()

	release, err := m.acquire(ctx, input)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	out, err = m.inner.Generate(ctx, input, opts...)
	elapsed := time.Since(start)
	metrics.ModelDuration.WithLabelValues(m.ref.Provider).Observe(elapsed.Seconds())
	if err != nil {
		m.logger.Warn("model generate failed", "provider", m.ref.Provider, "model", m.ref.Name, "duration_ms", elapsed.Milliseconds(), "error", err)
		return nil, err
	}
	m.recordUsage(out)
	m.logger.Debug("model generate done", "provider", m.ref.Provider, "model", m.ref.Name,
		"duration_ms", elapsed.Milliseconds(), "tool_calls", len(out.ToolCalls))
	return out, nil
}

// Stream 实现 model.BaseChatModel；并发槽位与 span 持有到流读完或被关闭，
// 分片原样转发，最后一个携带 usage 的分片计入 token 用量
func (m *RateLimitedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	ctx, span := tracing.StartModelSpan(ctx, m.ref.Provider, m.ref.Name)
	release, err := m.acquire(ctx, input)
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}

	start := time.Now()
	in, err := m.inner.Stream(ctx, input, opts...)
	if err != nil {
		release()
		metrics.ModelDuration.WithLabelValues(m.ref.Provider).Observe(time.Since(start).Seconds())
		m.logger.Warn("model stream failed", "provider", m.ref.Provider, "model", m.ref.Name, "error", err)
		tracing.End(span, err)
		return nil, err
	}

	out, w := schema.Pipe[*schema.Message](1)
	go func() {
		var (
			last    *schema.Message
			chunks  int
			recvErr error
		)
		defer func() {
			in.Close()
			release()
			elapsed := time.Since(start)
			metrics.ModelDuration.WithLabelValues(m.ref.Provider).Observe(elapsed.Seconds())
			m.recordUsage(last)
			if recvErr != nil {
				m.logger.Warn("model stream failed", "provider", m.ref.Provider, "model", m.ref.Name,
					"duration_ms", elapsed.Milliseconds(), "error", recvErr)
			} else {
				m.logger.Debug("model stream done", "provider", m.ref.Provider, "model", m.ref.Name,
					"duration_ms", elapsed.Milliseconds(), "chunks", chunks)
			}
			tracing.End(span, recvErr)
			w.Close()
		}()
		for {
			chunk, err := in.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				recvErr = err
				w.Send(nil, err)
				return
			}
			chunks++
			if chunk != nil && chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
				last = chunk
			}
			if closed := w.Send(chunk, nil); closed {
				return
			}
		}
	}()
	return out, nil
}

// WithTools 实现 model.ToolCallingChatModel，返回绑定工具后的新实例
func (m *RateLimitedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	inner, err := m.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &RateLimitedChatModel{inner: inner, ref: m.ref, rateLimiter: m.rateLimiter, logger: m.logger}, nil
}

// Ref 返回模型引用
func (m *RateLimitedChatModel) Ref() ModelRef { return m.ref }

func (m *RateLimitedChatModel) acquire(ctx context.Context, input []*schema.Message) (func(), error) {
	if m.rateLimiter == nil {
		return func() {}, nil
	}
	start := time.Now()
	if err := m.rateLimiter.Wait(ctx, m.ref.Provider, estimateTokens(input)); err != nil {
		return nil, err
	}
	waited := time.Since(start)
	if waited > 100*time.Millisecond {
		metrics.RateLimitWaitSeconds.WithLabelValues("llm", m.ref.Provider).Observe(waited.Seconds())
	}
	return func() { m.rateLimiter.Release(m.ref.Provider) }, nil
}

func (m *RateLimitedChatModel) recordUsage(out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	if m.rateLimiter != nil {
		m.rateLimiter.RecordTokenUsage(m.ref.Provider, usage.PromptTokens+usage.CompletionTokens)
	}
}

// estimateTokens 粗略估算请求的 token 数（4 字符 ≈ 1 token）
func estimateTokens(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
		for _, tc := range m.ToolCalls {
			total += len(tc.Function.Arguments)
		}
	}
	estimated := total / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
