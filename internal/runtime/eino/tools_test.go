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
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/tool"
	"search-agent/internal/tool/registry"
	"search-agent/pkg/errors"
	"search-agent/pkg/log"
)

type badSchemaTool struct{ fakeSearchTool }

func (b *badSchemaTool) Schema() tool.Schema {
	return tool.Schema{Type: "object", Properties: map[string]tool.SchemaProperty{"query": {Type: "tuple"}}}
}

type reportingTool struct{ fakeSearchTool }

func (r *reportingTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{Err: "quota exceeded"}, nil
}

func TestBridgeToolOrUnavailable_FallbackWhenSchemaInvalid(t *testing.T) {
	tl := bridgeToolOrUnavailable(&badSchemaTool{}, log.Nop())

	info, err := tl.Info(context.Background())
	if err != nil {
		t.Fatalf("unexpected info error: %v", err)
	}
	if info == nil || info.Name != "duckduckgo_search" {
		t.Fatalf("unexpected tool info: %#v", info)
	}

	_, err = tl.InvokableRun(context.Background(), `{"query":"q"}`)
	if err == nil {
		t.Fatal("expected fallback tool error, got nil")
	}
	if !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("expected unavailable error, got: %v", err)
	}
	if !errors.Is(err, errors.ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg in chain, got: %v", err)
	}
}

func TestToolInfo(t *testing.T) {
	info, err := toolInfo(&fakeSearchTool{})
	require.NoError(t, err)
	assert.Equal(t, "duckduckgo_search", info.Name)
	assert.Equal(t, "search the web", info.Desc)
	assert.NotNil(t, info.ParamsOneOf)
}

func TestRuntimeTool_InvokableRun(t *testing.T) {
	st := &fakeSearchTool{content: "1. Go\n   https://go.dev"}
	tl := bridgeToolOrUnavailable(st, log.Nop())

	out, err := tl.InvokableRun(context.Background(), `{"query":"golang"}`)
	require.NoError(t, err)
	assert.Equal(t, st.content, out)
	assert.Equal(t, []string{"golang"}, st.queries)
}

func TestRuntimeTool_InvalidArguments(t *testing.T) {
	tl := bridgeToolOrUnavailable(&fakeSearchTool{}, log.Nop())
	_, err := tl.InvokableRun(context.Background(), `{"query":`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

func TestRuntimeTool_ReportedError(t *testing.T) {
	tl := bridgeToolOrUnavailable(&reportingTool{}, log.Nop())
	_, err := tl.InvokableRun(context.Background(), `{"query":"x"}`)
	require.EqualError(t, err, "tool duckduckgo_search: quota exceeded")
}

func TestBridgeTools(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(&fakeSearchTool{}))
	tools, infos, err := BridgeTools(context.Background(), reg, log.Nop())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Len(t, infos, 1)
	assert.Equal(t, "duckduckgo_search", infos[0].Name)
}

func TestUnknownToolHandler(t *testing.T) {
	_, err := unknownToolHandler(context.Background(), "calculator", "{}")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownTool))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ReplyPlain, Classify(nil))
	assert.Equal(t, ReplyPlain, Classify(schema.AssistantMessage("hi", nil)))
	assert.Equal(t, ReplyToolRequest, Classify(searchCall("c1", "q")))
	assert.Equal(t, "tool_request", ReplyToolRequest.String())
	assert.Equal(t, "plain", ReplyPlain.String())
}
