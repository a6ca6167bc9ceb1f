// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/gomlx/bert/pkg/ml/model/bert"
	graphtest "github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestContext is the demo context with a smaller model.
func createTestContext() *context.Context {
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		bert.ParamVocabSize:     500,
		bert.ParamNumHiddens:    32,
		bert.ParamFFNNumHiddens: 64,
		bert.ParamNumLayers:     1,
		bert.ParamKeySize:       32,
		bert.ParamQuerySize:     32,
		bert.ParamValueSize:     32,
		bert.ParamFFNNumInput:   32,
		bert.ParamMLMNumInputs:  32,
		bert.ParamNSPNumInputs:  32,
		bert.ParamMaxLen:        16,
	})
	return ctx
}

func TestRun(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, trainMode := range []bool{false, true} {
		ctx := createTestContext()
		results, err := Run(backend, ctx, Options{Seed: 42, TrainMode: trainMode})
		require.NoError(t, err)

		require.Len(t, results.Tokens, 2)
		for _, row := range results.Tokens {
			require.Len(t, row, 8)
			for _, token := range row {
				assert.GreaterOrEqual(t, token, int32(0))
				assert.Less(t, token, int32(500))
			}
		}
		assert.Equal(t, []int32{0, 0, 0, 1, 1, 1}, results.BatchIndices)
		assert.Equal(t, []int{2, 8, 32}, results.Encoded.Dimensions)
		assert.Equal(t, []int{2, 3, 500}, results.MLMYHat.Dimensions)
		assert.Equal(t, []int{2, 2}, results.NSPYHat.Dimensions)

		require.Len(t, results.MLMLoss, 6)
		var sum float64
		for _, l := range results.MLMLoss {
			require.False(t, math.IsNaN(float64(l)) || math.IsInf(float64(l), 0))
			assert.Greater(t, l, float32(0))
			sum += float64(l)
		}
		assert.InDelta(t, sum/6, float64(results.MLMLossMean), 1e-3)
		require.Len(t, results.NSPLoss, 2)

		assert.Equal(t, []string{"<cls>", "this", "movie", "is", "great", "<sep>", "i", "like", "it", "<sep>"},
			results.ExampleTokens)
		assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1}, results.ExampleSegments)

		var buf bytes.Buffer
		results.Print(&buf, ctx, true)
		out := buf.String()
		assert.Contains(t, out, "encoded_X")
		assert.Contains(t, out, "[2 8 32]")
		assert.Contains(t, out, "[2 3 500]")
		assert.Contains(t, out, "[0 0 0 1 1 1]")
		assert.Contains(t, out, "token_embedding")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := createTestContext()
	ctx.SetParam(bert.ParamNumHeads, 5)
	_, err := Run(backend, ctx, Options{})
	require.Error(t, err)
}

func TestRunSequenceTooLong(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := createTestContext()
	ctx.SetParam(bert.ParamMaxLen, 4)
	_, err := Run(backend, ctx, Options{})
	require.Error(t, err)
}

type fakeBackend struct {
	calls *[]string
}

func (b fakeBackend) Finalize() { *b.calls = append(*b.calls, "finalize") }

func TestExitWithError(t *testing.T) {
	var calls []string
	defer func(f func(string, ...any)) { fatalf = f }(fatalf)
	fatalf = func(format string, args ...any) {
		calls = append(calls, "fatal: "+fmt.Sprintf(format, args...))
	}
	exitWithError(fakeBackend{calls: &calls}, errors.New("bad config"))
	require.Len(t, calls, 2)
	assert.Equal(t, "finalize", calls[0])
	assert.Contains(t, calls[1], "bad config")
}
