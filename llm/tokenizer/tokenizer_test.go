package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorCountTokens(t *testing.T) {
	t.Parallel()

	e := NewEstimatorTokenizer("unknown-model", 0)

	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{name: "empty", text: "", min: 0, max: 0},
		{name: "short ascii", text: "hi", min: 1, max: 1},
		{name: "ascii sentence", text: "The quick brown fox jumps over the lazy dog", min: 8, max: 14},
		{name: "cjk", text: "知识图谱检索", min: 3, max: 6},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, err := e.CountTokens(tt.text)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, tt.min)
			assert.LessOrEqual(t, n, tt.max)
		})
	}
}

func TestEstimatorDecodeUnsupported(t *testing.T) {
	t.Parallel()

	e := NewEstimatorTokenizer("m", 0)
	_, err := e.Decode([]int{1, 2, 3})
	assert.Error(t, err)
}

func TestRegistryPrefixMatch(t *testing.T) {
	est := NewEstimatorTokenizer("llama-3.1", 8192)
	RegisterTokenizer("llama-3.1", est)

	got, err := GetTokenizer("llama-3.1-8b-instant")
	require.NoError(t, err)
	assert.Equal(t, "estimator", got.Name())

	_, err = GetTokenizer("totally-unknown")
	assert.Error(t, err)

	fallback := GetTokenizerOrEstimator("totally-unknown")
	assert.Equal(t, "estimator", fallback.Name())
}

func TestMustCountNeverFails(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, MustCount(nil, ""))
	assert.Equal(t, 1, MustCount(nil, "ab"))
	assert.Positive(t, MustCount(NewEstimatorTokenizer("m", 0), "some text here"))
}
