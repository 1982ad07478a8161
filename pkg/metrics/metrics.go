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

package metrics

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry；命令行进程不暴露端口，退出时由 WriteFile 导出
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		TurnTotal, TurnDuration, ToolRounds,
		ToolDuration, ToolFailTotal,
		ModelDuration, LLMTokensTotal,
		RateLimitWaitSeconds, SearchCacheTotal,
	)
}

// TurnTotal 对话轮次总数（按结果）
var TurnTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_turn_total",
		Help: "对话轮次总数（按结果）",
	},
	[]string{"status"}, // ok | error
)

// TurnDuration 单轮对话耗时（秒）
var TurnDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "search_agent_turn_duration_seconds",
		Help:    "单轮对话耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// ToolRounds 每轮对话内的 模型→工具 往返次数
var ToolRounds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "search_agent_tool_rounds",
		Help:    "每轮对话内的工具往返次数",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
	},
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// ToolFailTotal 工具调用失败次数
var ToolFailTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_tool_fail_total",
		Help: "工具调用失败次数",
	},
	[]string{"tool"},
)

// ModelDuration 模型调用耗时（秒）
var ModelDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_model_duration_seconds",
		Help:    "模型调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "search_agent_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "name"}, // kind: llm | search
)

// SearchCacheTotal 搜索结果缓存命中情况
var SearchCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_agent_search_cache_total",
		Help: "搜索结果缓存命中/未命中次数",
	},
	[]string{"result"}, // hit | miss
)

// WritePrometheus 将 Prometheus 文本格式写入 w
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile 将当前指标覆盖写入 path
func WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePrometheus(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
