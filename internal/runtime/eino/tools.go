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
	"fmt"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"search-agent/internal/tool"
	"search-agent/internal/tool/registry"
	"search-agent/pkg/errors"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/tracing"
	"search-agent/pkg/utils"
)

// debugOutputLimit Debug 日志中工具输出的最大字符数
const debugOutputLimit = 200

// runtimeTool 把 tool.Tool 适配为 eino InvokableTool，调用时记录 span、耗时与失败次数
type runtimeTool struct {
	t      tool.Tool
	info   *schema.ToolInfo
	logger *log.Logger
}

func (r *runtimeTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return r.info, nil
}

func (r *runtimeTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (out string, err error) {
	name := r.info.Name
	callID := compose.GetToolCallID(ctx)
	ctx, span := tracing.StartToolSpan(ctx, name, callID)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		if err != nil {
			metrics.ToolFailTotal.WithLabelValues(name).Inc()
			r.logger.Warn("tool invoke failed", "tool", name, "call_id", callID, "duration_ms", elapsed.Milliseconds(), "error", err)
		} else {
			r.logger.Debug("tool invoke done", "tool", name, "call_id", callID, "duration_ms", elapsed.Milliseconds(),
				"output", utils.Truncate(out, debugOutputLimit))
		}
		tracing.End(span, err)
	}()

	input, err := tool.DecodeInput(argumentsInJSON)
	if err != nil {
		return "", errors.Wrapf(err, "tool %s", name)
	}
	result, err := r.t.Execute(ctx, input)
	if err != nil {
		return "", err
	}
	if result.Err != "" {
		return "", fmt.Errorf("tool %s: %s", name, result.Err)
	}
	return result.Content, nil
}

// toolInfo 把 tool.Schema 转为 eino ToolInfo；属性类型必须是 JSON Schema 基本类型
func toolInfo(t tool.Tool) (*schema.ToolInfo, error) {
	s := t.Schema()
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	params := make(map[string]*schema.ParameterInfo, len(s.Properties))
	for name, p := range s.Properties {
		dt, err := dataType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("tool %s param %s: %w", t.Name(), name, err)
		}
		params[name] = &schema.ParameterInfo{
			Type:     dt,
			Desc:     p.Description,
			Required: required[name],
		}
	}
	return &schema.ToolInfo{
		Name:        t.Name(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func dataType(s string) (schema.DataType, error) {
	switch schema.DataType(s) {
	case schema.Object, schema.Number, schema.Integer, schema.String, schema.Array, schema.Null, schema.Boolean:
		return schema.DataType(s), nil
	case "":
		return schema.String, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidArg, "unsupported param type %q", s)
	}
}

type unavailableTool struct {
	info      *schema.ToolInfo
	createErr error
}

func (u *unavailableTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return u.info, nil
}

func (u *unavailableTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	return "", fmt.Errorf("tool %q unavailable: %w", u.info.Name, u.createErr)
}

func makeUnavailableTool(name, desc string, err error, logger *log.Logger) einotool.InvokableTool {
	logger.Error("创建工具failed，降级为不可用占位工具", "tool", name, "error", err)
	return &unavailableTool{
		info: &schema.ToolInfo{
			Name: name,
			Desc: desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "tool input",
					Required: false,
				},
			}),
		},
		createErr: err,
	}
}

// bridgeToolOrUnavailable 适配失败时返回占位工具，调用即报错
func bridgeToolOrUnavailable(t tool.Tool, logger *log.Logger) einotool.InvokableTool {
	info, err := toolInfo(t)
	if err != nil {
		return makeUnavailableTool(t.Name(), t.Description(), err, logger)
	}
	return &runtimeTool{t: t, info: info, logger: logger}
}

// BridgeTools 把注册表中的工具按注册顺序转为 eino 工具及其 ToolInfo
func BridgeTools(ctx context.Context, reg *registry.Registry, logger *log.Logger) ([]einotool.BaseTool, []*schema.ToolInfo, error) {
	list := reg.List()
	tools := make([]einotool.BaseTool, 0, len(list))
	infos := make([]*schema.ToolInfo, 0, len(list))
	for _, t := range list {
		bt := bridgeToolOrUnavailable(t, logger)
		info, err := bt.Info(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("tool %s info: %w", t.Name(), err)
		}
		tools = append(tools, bt)
		infos = append(infos, info)
	}
	return tools, infos, nil
}

// unknownToolHandler 模型请求了未注册的工具
func unknownToolHandler(ctx context.Context, name, input string) (string, error) {
	return "", errors.Wrapf(errors.ErrUnknownTool, "%s", name)
}
