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

package search

import (
	"context"

	"search-agent/internal/tool"
	"search-agent/pkg/config"
	"search-agent/pkg/errors"
	"search-agent/pkg/utils"
)

// Searcher 搜索后端，便于测试替换
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Tool 将 Searcher 暴露为 tool.Tool，参数为 {"query": "..."}
type Tool struct {
	searcher    Searcher
	name        string
	description string
}

// NewTool 创建网页搜索工具；名称与描述取自 search 配置
func NewTool(cfg config.SearchConfig, searcher Searcher) *Tool {
	return &Tool{
		searcher:    searcher,
		name:        utils.CoalesceString(cfg.ToolName, config.DefaultSearchToolName),
		description: utils.CoalesceString(cfg.Description, config.DefaultSearchDescription),
	}
}

// Name 实现 tool.Tool
func (t *Tool) Name() string { return t.name }

// Description 实现 tool.Tool
func (t *Tool) Description() string { return t.description }

// Schema 实现 tool.Tool
func (t *Tool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "网页搜索参数",
		Properties: map[string]tool.SchemaProperty{
			"query": {Type: "string", Description: "search query"},
		},
		Required: []string{"query"},
	}
}

// NoResultsContent 搜索无结果时返回给模型的内容
const NoResultsContent = "No good DuckDuckGo Search Result was found"

// Execute 实现 tool.Tool；空查询与网络错误作为 error 返回，无结果作为普通内容交给模型
func (t *Tool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	query := tool.StringArg(input, "query")
	if query == "" {
		return tool.ToolResult{}, errors.Wrapf(errors.ErrEmptyQuery, "tool %s", t.name)
	}
	results, err := t.searcher.Search(ctx, query)
	if errors.Is(err, errors.ErrNoResults) {
		return tool.ToolResult{Content: NoResultsContent}, nil
	}
	if err != nil {
		return tool.ToolResult{}, errors.Wrapf(err, "tool %s", t.name)
	}
	return tool.ToolResult{Content: Summarize(results)}, nil
}
