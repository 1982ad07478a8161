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
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"

	"search-agent/internal/runtime/eino"
	"search-agent/internal/runtime/session"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/tracing"
	"search-agent/pkg/utils"
)

// State 对话循环状态
type State int32

const (
	StateAwaitingInput State = iota
	StateProcessing
	StateTerminated
)

// String 实现 fmt.Stringer
func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateProcessing:
		return "processing"
	default:
		return "terminated"
	}
}

const (
	promptUser      = "User: "
	prefixAssistant = "Assistant: "
	farewell        = "Goodbye!"
)

// toolOutputLogLimit 退出时 Debug 日志里每条工具输出的最大字符数
const toolOutputLogLimit = 200

var exitKeywords = map[string]struct{}{"quit": {}, "exit": {}, "q": {}}

// IsExit 去掉首尾空白并转小写后是否为退出关键字
func IsExit(input string) bool {
	_, ok := exitKeywords[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// Responder 推理/行动循环
type Responder interface {
	Respond(ctx context.Context, history []*schema.Message) (*eino.TurnOutput, error)
}

// Options 对话循环可选项
type Options struct {
	StripThink bool
	// Stream 为 true 时 assistant 回复边生成边打印（Responder 需支持 eino.MessageSink）
	Stream bool
	Logger *log.Logger
}

// Loop 控制台对话循环：读一行、跑一轮推理、打印回复，直到退出或出错
type Loop struct {
	in        io.Reader
	out       io.Writer
	responder Responder
	session   *session.Session
	opts      Options
	logger    *log.Logger
	state     atomic.Int32
}

// NewLoop 创建对话循环
func NewLoop(in io.Reader, out io.Writer, responder Responder, sess *session.Session, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Loop{
		in:        in,
		out:       out,
		responder: responder,
		session:   sess,
		opts:      opts,
		logger:    logger.With("session_id", sess.ID),
	}
}

// State 当前状态
func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

type readResult struct {
	line string
	err  error
}

// Run 运行对话直到用户退出（返回 nil）或出现错误（打印一行 Error: 后返回该错误）。
// 等待输入时 ctx 被取消视同退出；处理中被取消按错误处理。
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateAwaitingInput)
	lines := make(chan readResult, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		r := bufio.NewReader(l.in)
		for {
			line, err := r.ReadString('\n')
			select {
			case lines <- readResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		fmt.Fprint(l.out, promptUser)

		var rr readResult
		select {
		case <-ctx.Done():
			fmt.Fprintln(l.out)
			return l.exit()
		case rr = <-lines:
		}

		eof := false
		if rr.err != nil {
			if rr.err != io.EOF {
				return l.fail(fmt.Errorf("read input: %w", rr.err))
			}
			eof = true
		}
		input := strings.TrimSpace(rr.line)
		if IsExit(input) {
			return l.exit()
		}
		if input == "" {
			if eof {
				fmt.Fprintln(l.out)
				return l.exit()
			}
			continue
		}

		if err := l.turn(ctx, input); err != nil {
			return l.fail(err)
		}
		if eof {
			fmt.Fprint(l.out, promptUser)
			fmt.Fprintln(l.out)
			return l.exit()
		}
	}
}

func (l *Loop) exit() error {
	fmt.Fprintln(l.out, farewell)
	l.setState(StateTerminated)
	l.logger.Info("conversation ended", "turns", l.session.Turns(), "messages", l.session.Len(),
		"assistant_messages", l.session.CountRole(schema.Assistant),
		"tool_results", l.session.CountRole(schema.Tool))
	for _, rec := range l.session.CopyToolCalls() {
		l.logger.Debug("tool call", "tool", rec.Tool, "call_id", rec.CallID, "input", rec.Input,
			"output", utils.Truncate(rec.Output, toolOutputLogLimit))
	}
	return nil
}

func (l *Loop) fail(err error) error {
	fmt.Fprintf(l.out, "Error: %s\n", singleLine(err.Error()))
	l.setState(StateTerminated)
	l.logger.Error("conversation aborted", "turns", l.session.Turns(), "error", err)
	return err
}

// turn 追加用户消息、运行推理循环、把产生的消息写回会话并打印 assistant 内容
func (l *Loop) turn(ctx context.Context, input string) (err error) {
	l.setState(StateProcessing)
	l.session.AddUserMessage(input)
	turnNo := l.session.Turns()

	ctx, span := tracing.StartTurnSpan(ctx, l.session.ID, turnNo)
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.TurnTotal.WithLabelValues(status).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	var printer *streamPrinter
	if l.opts.Stream {
		printer = newStreamPrinter(l.out, l.opts.StripThink)
		ctx = eino.WithMessageSink(ctx, printer)
	}
	out, err := l.responder.Respond(ctx, l.session.History())
	if err != nil {
		return err
	}
	if out == nil || out.Reply == nil {
		return fmt.Errorf("empty reply from model")
	}
	l.session.AppendProduced(out.Messages)

	switch {
	case printer != nil && printer.streamed:
		// 流式已打印全部模型输出，只补兜底回复或空回复
		if out.Fallback || !printer.lastPrinted {
			l.printReply(out.Reply)
		}
	default:
		for _, m := range out.Messages {
			if m == out.Reply || m.Role != schema.Assistant {
				continue
			}
			if text := l.render(m.Content); text != "" {
				fmt.Fprintf(l.out, "%s%s\n", prefixAssistant, text)
			}
		}
		l.printReply(out.Reply)
	}

	l.logger.Info("turn done", "turn", turnNo, "rounds", out.ToolRounds,
		"duration_ms", time.Since(start).Milliseconds())
	l.setState(StateAwaitingInput)
	return nil
}

func (l *Loop) printReply(reply *schema.Message) {
	fmt.Fprintf(l.out, "%s%s\n", prefixAssistant, l.render(reply.Content))
}

// singleLine 把多行错误信息压成一行
func singleLine(msg string) string {
	return strings.Join(strings.Fields(msg), " ")
}

func (l *Loop) render(content string) string {
	if l.opts.StripThink {
		content = StripThink(content)
	}
	return strings.TrimSpace(content)
}
