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

import "github.com/cloudwego/eino/schema"

// ReplyKind 模型回复的类型
type ReplyKind int

const (
	// ReplyPlain 普通文本回复，本轮结束
	ReplyPlain ReplyKind = iota
	// ReplyToolRequest 请求调用一个或多个工具
	ReplyToolRequest
)

// String 实现 fmt.Stringer
func (k ReplyKind) String() string {
	switch k {
	case ReplyToolRequest:
		return "tool_request"
	default:
		return "plain"
	}
}

// Classify 根据是否携带 tool calls 判断回复类型
func Classify(msg *schema.Message) ReplyKind {
	if msg != nil && len(msg.ToolCalls) > 0 {
		return ReplyToolRequest
	}
	return ReplyPlain
}

// TurnOutput 一轮推理/行动循环的结果
type TurnOutput struct {
	// Reply 最终的普通回复
	Reply *schema.Message
	// Messages 本轮新产生的消息（assistant 与 tool 结果），按时间顺序，最后一条即 Reply
	Messages []*schema.Message
	// ToolRounds 本轮执行的工具轮数
	ToolRounds int
	// Fallback 工具轮数达到上限，Reply 为兜底回复而非模型输出
	Fallback bool
}
