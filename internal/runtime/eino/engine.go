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
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"search-agent/internal/tool/registry"
	"search-agent/pkg/config"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
)

// Engine 推理/行动循环：编译好的 eino 图，每次 Respond 独立运行，不持有会话状态
type Engine struct {
	runnable compose.Runnable[[]*schema.Message, *TurnOutput]
	cfg      GraphConfig
	logger   *log.Logger
}

// NewEngine 绑定工具并编译推理图
func NewEngine(ctx context.Context, cm model.ToolCallingChatModel, reg *registry.Registry, agentCfg config.AgentConfig, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if agentCfg.MaxToolRounds < 0 {
		return nil, fmt.Errorf("agent.max_tool_rounds 不能为负数: %d", agentCfg.MaxToolRounds)
	}
	cfg := GraphConfig{
		MaxToolRounds: agentCfg.MaxToolRounds,
		FallbackReply: agentCfg.FallbackReply,
		SystemPrompt:  agentCfg.SystemPrompt,
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = config.DefaultFallbackReply
	}

	tools, infos, err := BridgeTools(ctx, reg, logger)
	if err != nil {
		return nil, err
	}
	if schemas, err := reg.SchemasForLLM(); err == nil {
		logger.Debug("tools bound to chat model", "tools", string(schemas))
	}

	runnable, err := buildGraph(ctx, cm, tools, infos, cfg)
	if err != nil {
		return nil, fmt.Errorf("编译推理图failed: %w", err)
	}
	logger.Info("eino 推理图编译成功", "graph", graphName, "tools", len(tools), "max_tool_rounds", cfg.MaxToolRounds)
	return &Engine{runnable: runnable, cfg: cfg, logger: logger}, nil
}

// Respond 以完整历史运行一轮推理/行动循环；history 不会被修改
func (e *Engine) Respond(ctx context.Context, history []*schema.Message) (*TurnOutput, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("history is empty")
	}
	in := append([]*schema.Message(nil), history...)

	start := time.Now()
	out, err := e.runnable.Invoke(ctx, in)
	if err != nil {
		e.logger.Debug("turn cycle failed", "error", err)
		return nil, rootCause(err)
	}
	metrics.ToolRounds.Observe(float64(out.ToolRounds))
	e.logger.Debug("turn cycle done", "rounds", out.ToolRounds, "messages", len(out.Messages),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// rootCause 剥掉 compose 附加的多行节点错误包装（"[NodeRunError] ...\nnode path: [...]"），
// 返回最内层仍可单行展示的错误；调用链仍可 errors.Is/As
func rootCause(err error) error {
	for strings.Contains(err.Error(), "\n") {
		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	if first, _, multi := strings.Cut(err.Error(), "\n"); multi {
		return &lineError{msg: strings.TrimSpace(first), err: err}
	}
	return err
}

// lineError 只展示首行的错误包装
type lineError struct {
	msg string
	err error
}

func (e *lineError) Error() string { return e.msg }

func (e *lineError) Unwrap() error { return e.err }
