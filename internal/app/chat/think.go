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
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink 去掉推理模型输出的 <think>…</think> 片段；未闭合的 <think> 之后全部丢弃
func StripThink(content string) string {
	content = thinkBlock.ReplaceAllString(content, "")
	if i := strings.Index(content, "<think>"); i >= 0 {
		content = content[:i]
	}
	return strings.TrimSpace(content)
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkFilter 流式版 StripThink：分片可能把标签切开，未确定的尾部留到下一片
type thinkFilter struct {
	buf     string
	inThink bool
}

// Feed 输入一个分片，返回可立即输出的文本
func (f *thinkFilter) Feed(s string) string {
	f.buf += s
	var out strings.Builder
	for {
		if f.inThink {
			i := strings.Index(f.buf, thinkClose)
			if i < 0 {
				f.buf = f.buf[len(f.buf)-partialTag(f.buf, thinkClose):]
				return out.String()
			}
			f.buf = f.buf[i+len(thinkClose):]
			f.inThink = false
			continue
		}
		i := strings.Index(f.buf, thinkOpen)
		if i < 0 {
			keep := partialTag(f.buf, thinkOpen)
			out.WriteString(f.buf[:len(f.buf)-keep])
			f.buf = f.buf[len(f.buf)-keep:]
			return out.String()
		}
		out.WriteString(f.buf[:i])
		f.buf = f.buf[i+len(thinkOpen):]
		f.inThink = true
	}
}

// Flush 消息结束时取出剩余文本；仍在 <think> 内的部分丢弃
func (f *thinkFilter) Flush() string {
	rest := f.buf
	if f.inThink {
		rest = ""
	}
	f.buf, f.inThink = "", false
	return rest
}

// partialTag s 末尾与 tag 前缀重合的最大长度（不含完整 tag）
func partialTag(s, tag string) int {
	for n := len(tag) - 1; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
