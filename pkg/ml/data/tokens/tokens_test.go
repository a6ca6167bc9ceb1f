// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensAndSegments(t *testing.T) {
	t.Run("SingleSentence", func(t *testing.T) {
		tokens, segments := TokensAndSegments([]string{"this", "movie", "is", "great"}, nil)
		assert.Equal(t, []string{"<cls>", "this", "movie", "is", "great", "<sep>"}, tokens)
		assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, segments)
	})

	t.Run("Pair", func(t *testing.T) {
		tokens, segments := TokensAndSegments([]string{"i", "like", "it"}, []string{"me", "too"})
		assert.Equal(t, []string{"<cls>", "i", "like", "it", "<sep>", "me", "too", "<sep>"}, tokens)
		assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 1, 1}, segments)
	})

	t.Run("EmptyFirst", func(t *testing.T) {
		tokens, segments := TokensAndSegments(nil, nil)
		assert.Equal(t, []string{CLS, SEP}, tokens)
		assert.Equal(t, []int{0, 0}, segments)
	})

	t.Run("EmptySecondIsPresent", func(t *testing.T) {
		tokens, segments := TokensAndSegments([]string{"a"}, []string{})
		assert.Equal(t, []string{CLS, "a", SEP, SEP}, tokens)
		assert.Equal(t, []int{0, 0, 0, 1}, segments)
	})

	t.Run("InputsNotModified", func(t *testing.T) {
		a := make([]string, 2, 10)
		a[0], a[1] = "x", "y"
		b := []string{"z"}
		tokens, _ := TokensAndSegments(a, b)
		tokens[1] = "changed"
		assert.Equal(t, []string{"x", "y"}, a)
		assert.Equal(t, "", a[:3][2], "tokens must not be appended into the spare capacity of tokensA")
		assert.Equal(t, []string{"z"}, b)
	})

	t.Run("LengthsMatch", func(t *testing.T) {
		for _, tc := range []struct{ a, b []string }{
			{nil, nil}, {[]string{"a"}, nil}, {[]string{"a", "b"}, []string{"c"}}, {nil, []string{"c", "d", "e"}},
		} {
			tokens, segments := TokensAndSegments(tc.a, tc.b)
			require.Len(t, segments, len(tokens))
			require.NoError(t, ValidateSegments(segments))
		}
	})
}

func TestAsBatch(t *testing.T) {
	_, segA := TokensAndSegments([]string{"a", "b", "c"}, []string{"d", "e"})
	_, segB := TokensAndSegments([]string{"a", "b"}, []string{"c", "d", "e"})
	batch, err := AsBatch(segA, segB)
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{0, 0, 0, 0, 0, 1, 1, 1}, {0, 0, 0, 0, 1, 1, 1, 1}}, batch)

	_, err = AsBatch([]int{0, 0}, []int{0, 0, 1})
	require.Error(t, err)

	_, err = AsBatch()
	require.Error(t, err)
}

func TestValidateSegments(t *testing.T) {
	require.NoError(t, ValidateSegments([]int{0, 0, 1, 1}))
	require.NoError(t, ValidateSegments(nil))
	require.Error(t, ValidateSegments([]int{0, 2}))
	require.Error(t, ValidateSegments([]int{0, 1, 0}))
}
