// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bert

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig groups the configuration tests.
func TestConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := New(10000, 768, 1024, 4, 2)
		assert.Equal(t, 10000, cfg.VocabSize)
		assert.Equal(t, 768, cfg.NumHiddens)
		assert.Equal(t, 1024, cfg.FFNNumHiddens)
		assert.Equal(t, 4, cfg.NumHeads)
		assert.Equal(t, 2, cfg.NumLayers)
		assert.Equal(t, 0.0, cfg.Dropout)
		assert.Equal(t, 1000, cfg.MaxLen)
		assert.Equal(t, 768, cfg.KeySize)
		assert.Equal(t, 768, cfg.QuerySize)
		assert.Equal(t, 768, cfg.ValueSize)
		assert.Equal(t, 768, cfg.FFNNumInput)
		assert.Equal(t, 768, cfg.MLMNumInputs)
		assert.Equal(t, 768, cfg.NSPNumInputs)
		assert.Equal(t, dtypes.Float32, cfg.DType)
		assert.Equal(t, 1e-5, cfg.LayerNormEpsilon)
		assert.Equal(t, 192, cfg.HeadDim())
		require.NoError(t, cfg.Validate())
	})

	t.Run("Builders", func(t *testing.T) {
		cfg := New(100, 64, 128, 4, 2).
			WithDropout(0.2).
			WithMaxLen(32).
			WithDType(dtypes.Float64).
			WithLayerNormEpsilon(1e-6)
		assert.Equal(t, 0.2, cfg.Dropout)
		assert.Equal(t, 32, cfg.MaxLen)
		assert.Equal(t, dtypes.Float64, cfg.DType)
		assert.Equal(t, 1e-6, cfg.LayerNormEpsilon)
		require.NoError(t, cfg.Validate())
	})

	t.Run("NewFromContext", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParams(map[string]any{
			ParamVocabSize:     1000,
			ParamNumHiddens:    128,
			ParamFFNNumHiddens: 256,
			ParamNumHeads:      8,
			ParamNumLayers:     3,
			ParamDropout:       0.1,
			ParamMaxLen:        64,
			ParamDType:         "float64",
		})
		cfg, err := NewFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.VocabSize)
		assert.Equal(t, 128, cfg.NumHiddens)
		assert.Equal(t, 256, cfg.FFNNumHiddens)
		assert.Equal(t, 8, cfg.NumHeads)
		assert.Equal(t, 3, cfg.NumLayers)
		assert.Equal(t, 0.1, cfg.Dropout)
		assert.Equal(t, 64, cfg.MaxLen)
		assert.Equal(t, dtypes.Float64, cfg.DType)
		assert.Equal(t, 128, cfg.MLMNumInputs)
	})

	t.Run("NewFromContextMissing", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParams(map[string]any{
			ParamVocabSize:  1000,
			ParamNumHiddens: 128,
		})
		_, err := NewFromContext(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ParamFFNNumHiddens)
	})

	t.Run("FromContext", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParams(map[string]any{
			ParamDropout:          0.3,
			ParamMaxLen:           16,
			ParamLayerNormEpsilon: 1e-3,
		})
		cfg := New(100, 64, 128, 4, 2)
		require.NoError(t, cfg.FromContext(ctx))
		assert.Equal(t, 0.3, cfg.Dropout)
		assert.Equal(t, 16, cfg.MaxLen)
		assert.Equal(t, 1e-3, cfg.LayerNormEpsilon)
		assert.Equal(t, dtypes.Float32, cfg.DType)
	})

	t.Run("FromContextInvalidDType", func(t *testing.T) {
		ctx := context.New()
		ctx.SetParam(ParamDType, "not_a_dtype")
		require.Error(t, New(100, 64, 128, 4, 2).FromContext(ctx))
	})

	t.Run("SetInContext", func(t *testing.T) {
		want := New(500, 96, 192, 3, 4).WithDropout(0.25).WithMaxLen(128).WithDType(dtypes.Float64)
		ctx := context.New()
		want.SetInContext(ctx)
		got, err := NewFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Validate", func(t *testing.T) {
		for name, cfg := range map[string]*Config{
			"VocabSize":      New(0, 64, 128, 4, 2),
			"NumLayers":      New(100, 64, 128, 4, 0),
			"HeadsDivisible": New(100, 64, 128, 5, 2),
			"Dropout":        New(100, 64, 128, 4, 2).WithDropout(1.0),
			"DType":          New(100, 64, 128, 4, 2).WithDType(dtypes.Int32),
			"MaxLen":         New(100, 64, 128, 4, 2).WithMaxLen(0),
			"Epsilon":        New(100, 64, 128, 4, 2).WithLayerNormEpsilon(0),
		} {
			assert.Errorf(t, cfg.Validate(), "expected Validate() error for invalid %s", name)
		}

		cfg := New(100, 64, 128, 4, 2)
		cfg.MLMNumInputs = 32
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MLMNumInputs")
	})
}
