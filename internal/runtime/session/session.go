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
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Session 单次进程内的对话状态：消息只追加，不删除、不重排，不落盘
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	messages  []*schema.Message // 对话历史
	toolCalls []ToolCallRecord  // 工具调用记录
	turns     int

	mu sync.RWMutex
}

// New 创建新 Session，id 为空时生成 session-<uuid>
func New(id string) *Session {
	now := time.Now()
	if id == "" {
		id = "session-" + uuid.New().String()
	}
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddUserMessage 追加一条用户消息并开始新的一轮
func (s *Session) AddUserMessage(content string) *schema.Message {
	msg := schema.UserMessage(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	s.messages = append(s.messages, msg)
	s.turns++
	return msg
}

// AppendProduced 按顺序追加一轮中产生的 assistant 与 tool 消息，并据此记录工具调用
func (s *Session) AppendProduced(produced []*schema.Message) {
	if len(produced) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	s.messages = append(s.messages, produced...)
	s.toolCalls = append(s.toolCalls, recordsFrom(produced, s.UpdatedAt)...)
}

// History 返回对话历史的副本（切片副本，消息只读共享）
func (s *Session) History() []*schema.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	out := make([]*schema.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len 消息条数
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Turns 已开始的轮数
func (s *Session) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns
}

// CountRole 统计某角色的消息条数
func (s *Session) CountRole(role schema.RoleType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// CopyToolCalls 返回 ToolCalls 的副本
func (s *Session) CopyToolCalls() []ToolCallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.toolCalls) == 0 {
		return nil
	}
	out := make([]ToolCallRecord, len(s.toolCalls))
	copy(out, s.toolCalls)
	return out
}
