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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"search-agent/internal/storage/cache"
	"search-agent/pkg/config"
	"search-agent/pkg/errors"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// Client DuckDuckGo lite 搜索客户端：resty 发送表单请求，429/5xx 重试，rate.Limiter 控制请求节奏
type Client struct {
	http       *resty.Client
	endpoint   string
	region     string
	maxResults int
	limiter    *rate.Limiter
	name       string

	cache    cache.Store
	cacheTTL time.Duration
	logger   *log.Logger
}

// Option Client 可选项
type Option func(*Client)

// WithCache 启用结果缓存；store 为 nil 时不缓存
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryWait 设置重试等待区间
func WithRetryWait(wait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryWaitTime(wait)
		c.http.SetRetryMaxWaitTime(maxWait)
	}
}

// NewClient 根据 search 配置创建客户端
func NewClient(cfg config.SearchConfig, opts ...Option) *Client {
	endpoint := utils.CoalesceString(cfg.Endpoint, config.DefaultSearchEndpoint)
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	name := utils.CoalesceString(cfg.ToolName, config.DefaultSearchToolName)
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}

	client := resty.New()
	client.SetTimeout(config.ParseDuration(cfg.Timeout, 15*time.Second))
	client.SetHeader("User-Agent", userAgent)
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if r == nil {
			return false
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
	})

	c := &Client{
		http:       client,
		endpoint:   endpoint,
		region:     cfg.Region,
		maxResults: maxResults,
		limiter:    rate.NewLimiter(limit, 1),
		name:       name,
		logger:     log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search 执行一次搜索，返回至多 maxResults 条结果；无结果返回 errors.ErrNoResults
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(errors.ErrEmptyQuery, "duckduckgo")
	}

	key := c.cacheKey(query)
	if results, ok := c.fromCache(ctx, key); ok {
		return results, nil
	}

	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("duckduckgo rate limit: %w", err)
	}

	form := map[string]string{"q": query}
	if c.region != "" {
		form["kl"] = c.region
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode())
	}

	results, err := parseLite(resp.Body())
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.Wrap(errors.ErrNoResults, "duckduckgo")
	}
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	c.logger.Debug("duckduckgo search done", "tool", c.name, "results", len(results))

	c.toCache(ctx, key, results)
	return results, nil
}

func (c *Client) wait(ctx context.Context) error {
	start := time.Now()
	err := c.limiter.Wait(ctx)
	metrics.RateLimitWaitSeconds.WithLabelValues("search", c.name).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return "search:" + c.region + ":" + normalized
}

func (c *Client) fromCache(ctx context.Context, key string) ([]Result, bool) {
	if c.cache == nil {
		return nil, false
	}
	var results []Result
	if err := c.cache.Get(ctx, key, &results); err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			c.logger.Warn("search cache get failed", "tool", c.name, "error", err)
		}
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
	return results, true
}

func (c *Client) toCache(ctx context.Context, key string, results []Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, results, c.cacheTTL); err != nil {
		c.logger.Warn("search cache set failed", "tool", c.name, "error", err)
	}
}

// Summarize 把结果格式化为编号文本摘要，作为工具输出交给模型
func Summarize(results []Result) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "\n   %s", r.Snippet)
		}
		fmt.Fprintf(&sb, "\n   %s", r.URL)
	}
	return sb.String()
}
