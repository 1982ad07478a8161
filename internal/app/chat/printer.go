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

package chat

import (
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const blank = " \t\r\n"

// streamPrinter 实现 eino.MessageSink：assistant 文本到达即打印，每条消息一行 "Assistant: ..."。
// 首尾空白与 <think> 片段按 render 的规则处理；没有可见文本的消息（如纯 tool call）不打印。
type streamPrinter struct {
	out   io.Writer
	strip bool

	filter    thinkFilter
	started   bool   // 当前消息已打印前缀
	pendingWS string // 尚未确定是否为结尾的空白

	streamed    bool // 本轮收到过分片
	lastPrinted bool // 最近一条结束的消息打印过文本
}

func newStreamPrinter(out io.Writer, strip bool) *streamPrinter {
	return &streamPrinter{out: out, strip: strip}
}

func (p *streamPrinter) OnChunk(chunk *schema.Message) {
	p.streamed = true
	if chunk == nil || chunk.Role == schema.Tool {
		return
	}
	text := chunk.Content
	if p.strip {
		text = p.filter.Feed(text)
	}
	p.write(text)
}

func (p *streamPrinter) OnMessageEnd() {
	if p.strip {
		p.write(p.filter.Flush())
	}
	if p.started {
		fmt.Fprintln(p.out)
	}
	p.lastPrinted = p.started
	p.started = false
	p.pendingWS = ""
	p.filter = thinkFilter{}
}

func (p *streamPrinter) write(text string) {
	if text == "" {
		return
	}
	if !p.started {
		text = strings.TrimLeft(text, blank)
		if text == "" {
			return
		}
		fmt.Fprint(p.out, prefixAssistant)
		p.started = true
	}
	body := strings.TrimRight(text, blank)
	if body == "" {
		p.pendingWS += text
		return
	}
	fmt.Fprint(p.out, p.pendingWS+body)
	p.pendingWS = text[len(body):]
}
