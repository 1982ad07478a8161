package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/pkg/errors"
)

func TestDecodeInput(t *testing.T) {
	input, err := DecodeInput(`{"query":"weather in Paris"}`)
	require.NoError(t, err)
	assert.Equal(t, "weather in Paris", StringArg(input, "query"))

	input, err = DecodeInput("  ")
	require.NoError(t, err)
	assert.Empty(t, input)

	input, err = DecodeInput("null")
	require.NoError(t, err)
	assert.NotNil(t, input)
}

func TestDecodeInput_Invalid(t *testing.T) {
	_, err := DecodeInput(`{"query":`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

func TestStringArg(t *testing.T) {
	input := map[string]any{"query": "  go 1.25 release  ", "n": 3}
	assert.Equal(t, "go 1.25 release", StringArg(input, "query"))
	assert.Equal(t, "", StringArg(input, "n"))
	assert.Equal(t, "", StringArg(input, "missing"))
}
