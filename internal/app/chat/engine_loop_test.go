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

package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/runtime/eino"
	"search-agent/internal/runtime/session"
	"search-agent/internal/tool"
	"search-agent/internal/tool/registry"
	"search-agent/pkg/config"
	"search-agent/pkg/log"
)

// chunkModel 按脚本逐条回复，每条回复是一组流式分片；超出脚本后重复最后一条
type chunkModel struct {
	mu     sync.Mutex
	script [][]*schema.Message
	calls  int
	err    error
}

func (m *chunkModel) next() ([]*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	i := m.calls
	if i >= len(m.script) {
		i = len(m.script) - 1
	}
	m.calls++
	return m.script[i], nil
}

func (m *chunkModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	chunks, err := m.next()
	if err != nil {
		return nil, err
	}
	return schema.ConcatMessages(chunks)
}

func (m *chunkModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	chunks, err := m.next()
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (m *chunkModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

type staticSearch struct{ content string }

func (s staticSearch) Name() string        { return config.DefaultSearchToolName }
func (s staticSearch) Description() string { return "search the web" }
func (s staticSearch) Schema() tool.Schema {
	return tool.Schema{
		Type:       "object",
		Properties: map[string]tool.SchemaProperty{"query": {Type: "string"}},
		Required:   []string{"query"},
	}
}
func (s staticSearch) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{Content: s.content}, nil
}

func textChunks(parts ...string) []*schema.Message {
	out := make([]*schema.Message, 0, len(parts))
	for _, p := range parts {
		out = append(out, schema.AssistantMessage(p, nil))
	}
	return out
}

func searchRequest(id, preface string) []*schema.Message {
	return []*schema.Message{schema.AssistantMessage(preface, []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: config.DefaultSearchToolName, Arguments: `{"query":"weather in Paris"}`},
	}})}
}

func runEngineLoop(t *testing.T, input string, m *chunkModel, agentCfg config.AgentConfig, opts Options) (string, error) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(staticSearch{content: "1. Paris Weather\n   18°C, light rain."}))
	e, err := eino.NewEngine(context.Background(), m, reg, agentCfg, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	l := NewLoop(strings.NewReader(input), &out, e, session.New("s-engine"), opts)
	err = l.Run(context.Background())
	return out.String(), err
}

func defaultAgent() config.AgentConfig {
	return config.AgentConfig{MaxToolRounds: config.DefaultMaxToolRounds, FallbackReply: config.DefaultFallbackReply}
}

func TestLoop_EngineModelErrorPrintsSingleLine(t *testing.T) {
	for _, stream := range []bool{false, true} {
		m := &chunkModel{err: errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")}
		out, err := runEngineLoop(t, "hello\nsecond\n", m, defaultAgent(), Options{Stream: stream})
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(out, "User: Error: "), "stream=%v output %q", stream, out)
		assert.Contains(t, out, "connection refused")
		assert.Equal(t, 1, strings.Count(out, "\n"), "stream=%v output %q", stream, out)
		assert.NotContains(t, out, "node path")
	}
}

func TestLoop_StreamsReplyThroughEngine(t *testing.T) {
	m := &chunkModel{script: [][]*schema.Message{
		searchRequest("c1", ""),
		textChunks("<thi", "nk>user wants weather</th", "ink>\n", "It is ", "18°C ", "in Paris.\n"),
	}}
	out, err := runEngineLoop(t, "weather?\nquit\n", m, defaultAgent(), Options{Stream: true, StripThink: true})
	require.NoError(t, err)
	assert.Equal(t, "User: Assistant: It is 18°C in Paris.\nUser: Goodbye!\n", out)
	assert.Equal(t, 2, m.calls)
}

func TestLoop_StreamPrintsPrefaceBeforeToolCall(t *testing.T) {
	m := &chunkModel{script: [][]*schema.Message{
		searchRequest("c1", "Let me search."),
		textChunks("Light ", "rain."),
	}}
	out, err := runEngineLoop(t, "weather?\nq\n", m, defaultAgent(), Options{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "User: Assistant: Let me search.\nAssistant: Light rain.\nUser: Goodbye!\n", out)
}

func TestLoop_StreamPrintsFallbackAtRoundCap(t *testing.T) {
	m := &chunkModel{script: [][]*schema.Message{searchRequest("c1", "Searching.")}}
	agentCfg := config.AgentConfig{MaxToolRounds: 1, FallbackReply: "I gave up searching."}
	out, err := runEngineLoop(t, "weather?\nq\n", m, agentCfg, Options{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "User: Assistant: Searching.\nAssistant: Searching.\nAssistant: I gave up searching.\nUser: Goodbye!\n", out)
}

func TestLoop_NonStreamingEngineMatchesStreaming(t *testing.T) {
	script := [][]*schema.Message{
		searchRequest("c1", "Let me search."),
		textChunks("Light ", "rain."),
	}
	streamed, err := runEngineLoop(t, "weather?\nq\n", &chunkModel{script: script}, defaultAgent(), Options{Stream: true})
	require.NoError(t, err)
	plain, err := runEngineLoop(t, "weather?\nq\n", &chunkModel{script: script}, defaultAgent(), Options{})
	require.NoError(t, err)
	assert.Equal(t, plain, streamed)
}

func TestLoop_ExitLogsSessionSummary(t *testing.T) {
	var logs bytes.Buffer
	logger := log.NewWithWriter(&log.Config{Level: "debug", Format: "text"}, &logs)
	m := &chunkModel{script: [][]*schema.Message{
		searchRequest("c1", ""),
		textChunks("Light rain."),
	}}
	_, err := runEngineLoop(t, "weather?\nq\n", m, defaultAgent(), Options{Logger: logger})
	require.NoError(t, err)

	got := logs.String()
	assert.Contains(t, got, `msg="conversation ended"`)
	assert.Contains(t, got, "assistant_messages=2")
	assert.Contains(t, got, "tool_results=1")
	assert.Contains(t, got, `msg="tool call"`)
	assert.Contains(t, got, "call_id=c1")
	assert.Contains(t, got, "Paris Weather")
}
