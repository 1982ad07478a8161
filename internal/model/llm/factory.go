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
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"search-agent/pkg/config"
)

// ModelRef 解析后的默认模型引用
type ModelRef struct {
	Provider string // 如 ollama
	Key      string // 配置中的 model_key
	Name     string // 服务端模型名，如 llama3-groq-tool-use:8b
}

// ResolveDefault 按 model.defaults.llm 找到 provider 与模型配置
func ResolveDefault(cfg *config.Config) (ModelRef, config.ProviderConfig, config.ModelInfo, error) {
	provider, modelKey, err := parseDefaultKey(cfg.Model.Defaults.LLM)
	if err != nil {
		return ModelRef{}, config.ProviderConfig{}, config.ModelInfo{}, err
	}
	pc, ok := cfg.Model.LLM.Providers[provider]
	if !ok {
		return ModelRef{}, config.ProviderConfig{}, config.ModelInfo{}, fmt.Errorf("LLM provider %q not configured", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return ModelRef{}, config.ProviderConfig{}, config.ModelInfo{}, fmt.Errorf("LLM model %q not configured in provider %q", modelKey, provider)
	}
	if mi.Name == "" {
		mi.Name = modelKey
	}
	return ModelRef{Provider: provider, Key: modelKey, Name: mi.Name}, pc, mi, nil
}

// NewChatModel 根据配置创建 OpenAI 兼容的 ChatModel（Ollama 走 /v1 兼容端点）
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, ModelRef, error) {
	ref, pc, mi, err := ResolveDefault(cfg)
	if err != nil {
		return nil, ModelRef{}, err
	}
	if pc.APIKey == "" {
		return nil, ModelRef{}, fmt.Errorf("LLM provider %q api_key not configured", ref.Provider)
	}

	mc := &openai.ChatModelConfig{
		Model:   mi.Name,
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Timeout: config.ParseDuration(pc.Timeout, 0),
	}
	if mi.Temperature != nil {
		t := float32(*mi.Temperature)
		mc.Temperature = &t
	}
	if mi.MaxTokens > 0 {
		n := mi.MaxTokens
		mc.MaxTokens = &n
	}

	chatModel, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, ModelRef{}, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return chatModel, ref, nil
}

func parseDefaultKey(key string) (provider, modelKey string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("default key 格式应为 provider.model_key，如 ollama.llama3_groq_tool_use，当前: %q", key)
	}
	return parts[0], parts[1], nil
}
