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

package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/app/chat"
	"search-agent/internal/model/llm"
	"search-agent/internal/runtime/session"
	"search-agent/pkg/config"
)

type echoModel struct{}

func (echoModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("echo: "+input[len(input)-1].Content, nil), nil
}

func (echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("echo: ", nil),
		schema.AssistantMessage(input[len(input)-1].Content, nil),
	}), nil
}

func (m echoModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func echoFactory(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, llm.ModelRef, error) {
	return echoModel{}, llm.ModelRef{Provider: "fake", Key: "echo", Name: "echo"}, nil
}

func TestNewBootstrapWithModel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "agent.log")
	cfg.Storage.Cache.Type = "memory"
	cfg.Monitoring.Prometheus.Enable = true
	cfg.Monitoring.Prometheus.File = filepath.Join(t.TempDir(), "metrics.prom")

	ctx := context.Background()
	b, err := NewBootstrapWithModel(ctx, cfg, echoFactory)
	require.NoError(t, err)

	assert.Equal(t, 1, b.Tools.Len())
	_, ok := b.Tools.Get(config.DefaultSearchToolName)
	assert.True(t, ok)
	assert.NotNil(t, b.Cache)
	assert.Equal(t, "fake", b.ModelRef.Provider)
	assert.NotNil(t, b.Limiter)

	var out bytes.Buffer
	loop := chat.NewLoop(strings.NewReader("hello\nquit\n"), &out, b.Engine, session.New(""), chat.Options{StripThink: true, Stream: true, Logger: b.Logger})
	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, "User: Assistant: echo: hello\nUser: Goodbye!\n", out.String())

	b.Close(ctx)
	data, err := os.ReadFile(cfg.Monitoring.Prometheus.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "search_agent_turn_total")
}

func TestNewBootstrapWithModel_ModelError(t *testing.T) {
	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "agent.log")
	_, err := NewBootstrapWithModel(context.Background(), cfg, func(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, llm.ModelRef, error) {
		return nil, llm.ModelRef{}, errors.New("no model")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}

func TestNewBootstrapWithModel_BadCacheType(t *testing.T) {
	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "agent.log")
	cfg.Storage.Cache.Type = "memcached"
	_, err := NewBootstrapWithModel(context.Background(), cfg, echoFactory)
	require.Error(t, err)
}

func TestNewBootstrapWithModel_ResolvesSecretKey(t *testing.T) {
	t.Setenv("SEARCH_AGENT_BOOTSTRAP_KEY", "sk-resolved")
	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "agent.log")
	pc := cfg.Model.LLM.Providers[config.DefaultProvider]
	pc.APIKey = "secret:SEARCH_AGENT_BOOTSTRAP_KEY"
	cfg.Model.LLM.Providers[config.DefaultProvider] = pc

	var seen string
	b, err := NewBootstrapWithModel(context.Background(), cfg, func(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, llm.ModelRef, error) {
		seen = cfg.Model.LLM.Providers[config.DefaultProvider].APIKey
		return echoFactory(ctx, cfg)
	})
	require.NoError(t, err)
	defer b.Close(context.Background())
	assert.Equal(t, "sk-resolved", seen)
}

func TestNewBootstrapWithModel_MissingSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "agent.log")
	pc := cfg.Model.LLM.Providers[config.DefaultProvider]
	pc.APIKey = "secret:SEARCH_AGENT_BOOTSTRAP_UNSET"
	cfg.Model.LLM.Providers[config.DefaultProvider] = pc

	_, err := NewBootstrapWithModel(context.Background(), cfg, echoFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCH_AGENT_BOOTSTRAP_UNSET")
}
