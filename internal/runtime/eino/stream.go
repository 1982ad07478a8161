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

package eino

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MessageSink 接收 chatbot 节点流式产生的 assistant 消息分片。
// 每条模型回复以若干次 OnChunk 开始，以一次 OnMessageEnd 结束（出错时也会调用）。
type MessageSink interface {
	OnChunk(chunk *schema.Message)
	OnMessageEnd()
}

type sinkKey struct{}

// WithMessageSink 为本次 Respond 挂载流式输出；未挂载时模型走非流式 Generate
func WithMessageSink(ctx context.Context, sink MessageSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

func sinkFrom(ctx context.Context) MessageSink {
	sink, _ := ctx.Value(sinkKey{}).(MessageSink)
	return sink
}

// streamingChatModel 图内 chatbot 节点使用的模型：ctx 带 MessageSink 时改走 Stream，
// 边读边转发分片，读完后拼成完整消息交给分支与 state handler
type streamingChatModel struct {
	inner model.BaseChatModel
}

func (m *streamingChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	sink := sinkFrom(ctx)
	if sink == nil {
		return m.inner.Generate(ctx, input, opts...)
	}
	sr, err := m.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	defer sr.Close()
	defer sink.OnMessageEnd()

	var chunks []*schema.Message
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		sink.OnChunk(chunk)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chat model returned an empty stream")
	}
	return schema.ConcatMessages(chunks)
}

func (m *streamingChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.inner.Stream(ctx, input, opts...)
}
