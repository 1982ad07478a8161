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

package session

import (
	"time"

	"github.com/cloudwego/eino/schema"

	"search-agent/internal/tool"
)

// ToolCallRecord 单次工具调用记录
type ToolCallRecord struct {
	Tool   string         `json:"tool"`
	CallID string         `json:"call_id"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output"`
	At     time.Time      `json:"at"`
}

// recordsFrom 把 tool 结果消息与前面 assistant 消息里的同 ID tool call 配对
func recordsFrom(produced []*schema.Message, at time.Time) []ToolCallRecord {
	calls := make(map[string]schema.ToolCall)
	var out []ToolCallRecord
	for _, m := range produced {
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				calls[tc.ID] = tc
			}
		case schema.Tool:
			tc, ok := calls[m.ToolCallID]
			if !ok {
				continue
			}
			name := m.ToolName
			if name == "" {
				name = tc.Function.Name
			}
			input, _ := tool.DecodeInput(tc.Function.Arguments)
			out = append(out, ToolCallRecord{
				Tool:   name,
				CallID: m.ToolCallID,
				Input:  input,
				Output: m.Content,
				At:     at,
			})
		}
	}
	return out
}
