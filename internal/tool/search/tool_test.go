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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/pkg/config"
	"search-agent/pkg/errors"
)

type fakeSearcher struct {
	queries []string
	results []Result
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func TestTool_Descriptor(t *testing.T) {
	tl := NewTool(config.SearchConfig{}, &fakeSearcher{})
	assert.Equal(t, "duckduckgo_search", tl.Name())
	assert.Equal(t, config.DefaultSearchDescription, tl.Description())
	schema := tl.Schema()
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "query")
	assert.Equal(t, []string{"query"}, schema.Required)
}

func TestTool_Execute(t *testing.T) {
	fs := &fakeSearcher{results: []Result{{Title: "Paris", URL: "https://p.example", Snippet: "18°C"}}}
	tl := NewTool(config.SearchConfig{ToolName: "web_search", Description: "search"}, fs)

	res, err := tl.Execute(context.Background(), map[string]any{"query": " weather in Paris "})
	require.NoError(t, err)
	assert.Equal(t, "1. Paris\n   18°C\n   https://p.example", res.Content)
	assert.Empty(t, res.Err)
	assert.Equal(t, []string{"weather in Paris"}, fs.queries)
	assert.Equal(t, "web_search", tl.Name())
}

func TestTool_Execute_EmptyQuery(t *testing.T) {
	fs := &fakeSearcher{}
	tl := NewTool(config.SearchConfig{}, fs)
	_, err := tl.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptyQuery))
	assert.Empty(t, fs.queries)
}

func TestTool_Execute_PropagatesError(t *testing.T) {
	fs := &fakeSearcher{err: errors.Wrap(errors.ErrInvalidArg, "duckduckgo returned status 502")}
	tl := NewTool(config.SearchConfig{}, fs)
	_, err := tl.Execute(context.Background(), map[string]any{"query": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
	assert.True(t, strings.HasPrefix(err.Error(), "tool duckduckgo_search: "))
}

func TestTool_Execute_NoResultsIsContent(t *testing.T) {
	fs := &fakeSearcher{err: errors.Wrap(errors.ErrNoResults, "duckduckgo")}
	tl := NewTool(config.SearchConfig{}, fs)
	res, err := tl.Execute(context.Background(), map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, NoResultsContent, res.Content)
	assert.Empty(t, res.Err)
}
