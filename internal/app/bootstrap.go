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
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"search-agent/internal/model/llm"
	"search-agent/internal/runtime/eino"
	"search-agent/internal/storage/cache"
	"search-agent/internal/tool/registry"
	"search-agent/internal/tool/search"
	"search-agent/pkg/config"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/secrets"
	"search-agent/pkg/tracing"
)

// Bootstrap 统一初始化：日志、追踪、缓存、搜索工具、模型与推理图，cmd 只负责 I/O 与信号
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Cache    cache.Store // storage.cache.type=none 时为 nil
	Tools    *registry.Registry
	ModelRef llm.ModelRef
	Limiter  *llm.LLMRateLimiter
	Engine   *eino.Engine

	tracer *sdktrace.TracerProvider
}

// ChatModelFactory 创建底层 ChatModel，测试时可替换
type ChatModelFactory func(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, llm.ModelRef, error)

// NewBootstrap 根据配置创建 Bootstrap，使用 OpenAI 兼容 ChatModel
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	return NewBootstrapWithModel(ctx, cfg, llm.NewChatModel)
}

// NewBootstrapWithModel 根据配置与指定的 ChatModel 工厂创建 Bootstrap
func NewBootstrapWithModel(ctx context.Context, cfg *config.Config, newModel ChatModelFactory) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	b := &Bootstrap{Config: cfg, Logger: logger}

	if tc := cfg.Monitoring.Tracing; tc.Enable {
		b.tracer, err = tracing.InitTracer(ctx, tracing.OTelConfig{
			ServiceName:    tc.ServiceName,
			ExportEndpoint: tc.ExportEndpoint,
			Insecure:       tc.Insecure,
		})
		if err != nil {
			b.Close(ctx)
			return nil, fmt.Errorf("初始化 tracing failed: %w", err)
		}
	}

	b.Cache, err = cache.NewCache(ctx, cfg.Storage.Cache)
	if err != nil {
		b.Close(ctx)
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}

	client := search.NewClient(cfg.Search,
		search.WithCache(b.Cache, config.ParseDuration(cfg.Search.CacheTTL, 0)),
		search.WithLogger(logger),
	)
	b.Tools = registry.New()
	if err := b.Tools.Register(search.NewTool(cfg.Search, client)); err != nil {
		b.Close(ctx)
		return nil, err
	}

	if err := secrets.ResolveProviderKeys(ctx, cfg); err != nil {
		b.Close(ctx)
		return nil, fmt.Errorf("解析 api_key failed: %w", err)
	}
	cm, ref, err := newModel(ctx, cfg)
	if err != nil {
		b.Close(ctx)
		return nil, fmt.Errorf("初始化模型failed: %w", err)
	}
	b.ModelRef = ref
	b.Limiter = llm.NewLLMRateLimiter(llm.LimitsFromConfig(cfg.RateLimits), nil)
	wrapped := llm.NewRateLimitedChatModel(cm, ref, b.Limiter, logger)

	b.Engine, err = eino.NewEngine(ctx, wrapped, b.Tools, cfg.Agent, logger)
	if err != nil {
		b.Close(ctx)
		return nil, err
	}
	logger.Info("bootstrap done", "provider", ref.Provider, "model", ref.Name,
		"cache", cfg.Storage.Cache.Type, "tools", b.Tools.Len())
	return b, nil
}

// Close 释放资源：写出指标文件、刷新 tracer、关闭缓存与日志文件
func (b *Bootstrap) Close(ctx context.Context) {
	if b.Limiter != nil {
		if stats := b.Limiter.GetStats(b.ModelRef.Provider); stats != nil {
			b.Logger.Info("llm rate limiter stats", "provider", b.ModelRef.Provider, "stats", stats)
		}
	}
	if b.Config.Monitoring.Prometheus.Enable && b.Config.Monitoring.Prometheus.File != "" {
		if err := metrics.WriteFile(b.Config.Monitoring.Prometheus.File); err != nil {
			b.Logger.Warn("write metrics failed", "file", b.Config.Monitoring.Prometheus.File, "error", err)
		}
	}
	if b.tracer != nil {
		if err := b.tracer.Shutdown(ctx); err != nil {
			b.Logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			b.Logger.Warn("cache close failed", "error", err)
		}
	}
	_ = b.Logger.Close()
}
