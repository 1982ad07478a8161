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

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	einotool "github.com/cloudwego/eino/components/tool"
)

const (
	graphName   = "search_agent"
	nodeChatbot = "chatbot"
	nodeTools   = "tools"
	nodeFinish  = "finish"
)

// chatState 单次 Invoke 的图本地状态，只在 state handler 与 ProcessState 中读写
type chatState struct {
	Messages    []*schema.Message // 发给模型的完整上下文（含 system prompt）
	Produced    []*schema.Message // 本轮新产生的消息
	ToolRounds  int
	Fallback    bool
	initialized bool
}

// GraphConfig 推理/行动循环图的配置
type GraphConfig struct {
	MaxToolRounds int
	FallbackReply string
	SystemPrompt  string
}

// maxRunSteps 每个工具轮占 chatbot+tools 两步，再加最后一次 chatbot 与 finish
func (c GraphConfig) maxRunSteps() int {
	return 2*(c.MaxToolRounds+1) + 4
}

// buildGraph 编排 START → chatbot →(tool_request) tools → chatbot …；chatbot →(plain) finish → END
func buildGraph(ctx context.Context, cm model.ToolCallingChatModel, tools []einotool.BaseTool, infos []*schema.ToolInfo, cfg GraphConfig) (compose.Runnable[[]*schema.Message, *TurnOutput], error) {
	bound := cm
	if len(infos) > 0 {
		var err error
		bound, err = cm.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("bind tools to chat model: %w", err)
		}
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               tools,
		ExecuteSequentially: true,
		UnknownToolsHandler: unknownToolHandler,
	})
	if err != nil {
		return nil, fmt.Errorf("create tools node: %w", err)
	}

	g := compose.NewGraph[[]*schema.Message, *TurnOutput](
		compose.WithGenLocalState(func(ctx context.Context) *chatState {
			return &chatState{}
		}),
	)

	preChat := func(ctx context.Context, in []*schema.Message, st *chatState) ([]*schema.Message, error) {
		if !st.initialized {
			st.initialized = true
			if cfg.SystemPrompt != "" {
				st.Messages = append(st.Messages, schema.SystemMessage(cfg.SystemPrompt))
			}
			st.Messages = append(st.Messages, in...)
			return st.Messages, nil
		}
		// 后续输入来自 tools 节点：工具结果消息
		st.Messages = append(st.Messages, in...)
		st.Produced = append(st.Produced, in...)
		return st.Messages, nil
	}
	postChat := func(ctx context.Context, out *schema.Message, st *chatState) (*schema.Message, error) {
		if Classify(out) == ReplyToolRequest {
			if st.ToolRounds >= cfg.MaxToolRounds {
				out = schema.AssistantMessage(cfg.FallbackReply, nil)
				st.Fallback = true
			} else {
				st.ToolRounds++
			}
		}
		st.Messages = append(st.Messages, out)
		st.Produced = append(st.Produced, out)
		return out, nil
	}

	if err := g.AddChatModelNode(nodeChatbot, &streamingChatModel{inner: bound},
		compose.WithNodeName(nodeChatbot),
		compose.WithStatePreHandler(preChat),
		compose.WithStatePostHandler(postChat),
	); err != nil {
		return nil, err
	}
	if err := g.AddToolsNode(nodeTools, toolsNode, compose.WithNodeName(nodeTools)); err != nil {
		return nil, err
	}
	finish := compose.InvokableLambda(func(ctx context.Context, reply *schema.Message) (*TurnOutput, error) {
		out := &TurnOutput{Reply: reply}
		err := compose.ProcessState[*chatState](ctx, func(_ context.Context, st *chatState) error {
			out.Messages = append([]*schema.Message(nil), st.Produced...)
			out.ToolRounds = st.ToolRounds
			out.Fallback = st.Fallback
			return nil
		})
		return out, err
	})
	if err := g.AddLambdaNode(nodeFinish, finish, compose.WithNodeName(nodeFinish)); err != nil {
		return nil, err
	}

	branch := compose.NewGraphBranch(func(ctx context.Context, msg *schema.Message) (string, error) {
		if Classify(msg) == ReplyToolRequest {
			return nodeTools, nil
		}
		return nodeFinish, nil
	}, map[string]bool{nodeTools: true, nodeFinish: true})

	if err := g.AddEdge(compose.START, nodeChatbot); err != nil {
		return nil, err
	}
	if err := g.AddBranch(nodeChatbot, branch); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeTools, nodeChatbot); err != nil {
		return nil, err
	}
	if err := g.AddEdge(nodeFinish, compose.END); err != nil {
		return nil, err
	}

	return g.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithMaxRunSteps(cfg.maxRunSteps()),
	)
}
