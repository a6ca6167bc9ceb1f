// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bert

import (
	"math"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"k8s.io/klog/v2"
)

// EncoderBlock is one transformer encoder block, in its post-normalization form:
//
//	x = LayerNorm(x + Dropout(MultiHeadAttention(x, x, x)))
//	x = LayerNorm(x + Dropout(Dense(ReLU(Dense(x)))))
//
// x is shaped [batch_size, seq_len, cfg.NumHiddens] and the output has the same shape.
//
// validLens is optional (can be nil) and limits which keys each query attends to, see AttentionMask.
func EncoderBlock(ctx *context.Context, cfg *Config, x, validLens *Node) *Node {
	if x.Rank() != 3 {
		exceptions.Panicf("bert.EncoderBlock requires x shaped [batch_size, seq_len, num_hiddens], got %s", x.Shape())
	}
	if x.Shape().Dimensions[2] != cfg.NumHiddens {
		exceptions.Panicf("bert.EncoderBlock input embedding dimension must be NumHiddens=%d, got x.shape=%s",
			cfg.NumHiddens, x.Shape())
	}
	klog.V(2).Infof("bert.EncoderBlock(scope=%q, x=%s)", ctx.Scope(), x.Shape())

	y := multiHeadAttention(ctx.In("attention"), cfg, x, validLens)
	x = addNorm(ctx.In("add_norm_0"), cfg, x, y)

	y = positionWiseFFN(ctx.In("ffn"), cfg, x)
	return addNorm(ctx.In("add_norm_1"), cfg, x, y)
}

// MaskedScore replaces the attention scores of the keys beyond the valid length, before the softmax.
const MaskedScore = -1e6

// multiHeadAttention is the self-attention of x with cfg.NumHeads heads of cfg.HeadDim() each.
//
// The scores of the masked out keys are replaced by MaskedScore (not added to), so a query
// whose valid length is 0 attends uniformly to all keys.
func multiHeadAttention(ctx *context.Context, cfg *Config, x, validLens *Node) *Node {
	g := x.Graph()
	batchSize, seqLen := x.Shape().Dimensions[0], x.Shape().Dimensions[1]
	headDim := cfg.HeadDim()

	// Projections shaped [batch_size, seq_len, num_heads, head_dim].
	query := layers.Dense(ctx.In("query"), x, true, cfg.NumHeads, headDim)
	key := layers.Dense(ctx.In("key"), x, true, cfg.NumHeads, headDim)
	value := layers.Dense(ctx.In("value"), x, true, cfg.NumHeads, headDim)

	// Scores shaped [batch_size, queries, num_heads, keys].
	scores := Einsum("bqhd,bkhd->bqhk", query, key)
	scores = DivScalar(scores, math.Sqrt(float64(headDim)))
	if validLens != nil {
		mask := InsertAxes(AttentionMask(validLens, seqLen), 2)
		mask = BroadcastToDims(mask, scores.Shape().Dimensions...)
		scores = Where(mask, scores, Scalar(g, scores.DType(), MaskedScore))
	}
	coefficients := Softmax(scores, -1)
	if cfg.Dropout > 0 {
		coefficients = layers.Dropout(ctx.In("dropout"), coefficients, Scalar(g, coefficients.DType(), cfg.Dropout))
	}

	output := Einsum("bqhk,bkhd->bqhd", coefficients, value)
	output = Reshape(output, batchSize, seqLen, cfg.NumHeads*headDim)
	return layers.Dense(ctx.In("output"), output, true, cfg.NumHiddens)
}

// addNorm is the residual connection followed by layer normalization.
func addNorm(ctx *context.Context, cfg *Config, x, y *Node) *Node {
	if cfg.Dropout > 0 {
		y = layers.Dropout(ctx.In("dropout"), y, Scalar(y.Graph(), y.DType(), cfg.Dropout))
	}
	return layerNorm(ctx.In("layer_norm"), cfg, Add(x, y))
}

// layerNorm normalizes the last axis with cfg.LayerNormEpsilon, a learned gain and a learned offset.
// These are set explicitly, so the "layer_norm_*" context hyperparameters don't change the model.
func layerNorm(ctx *context.Context, cfg *Config, x *Node) *Node {
	return layers.LayerNormalization(ctx, x, -1).
		Epsilon(cfg.LayerNormEpsilon).
		LearnedGain(true).
		LearnedOffset(true).
		ScaleNormalization(true).
		Done()
}

// positionWiseFFN applies the same 2 layers dense network on every position.
func positionWiseFFN(ctx *context.Context, cfg *Config, x *Node) *Node {
	h := layers.Dense(ctx.In("dense_0"), x, true, cfg.FFNNumHiddens)
	h = activations.Relu(h)
	return layers.Dense(ctx.In("dense_1"), h, true, cfg.NumHiddens)
}

// AttentionMask converts valid lengths to a boolean attention mask shaped
// [batch_size, seq_len (queries), seq_len (keys)], where key k can be attended by
// query q if k < valid length.
//
// validLens must have an integer dtype and be shaped either:
//
//   - [batch_size]: one valid length per example, shared by all queries.
//   - [batch_size, seq_len]: one valid length per query.
//
// A query with valid length 0 has all its keys masked out, and EncoderBlock then attends
// uniformly to all keys.
func AttentionMask(validLens *Node, seqLen int) *Node {
	g := validLens.Graph()
	dtype := validLens.DType()
	if !dtype.IsInt() {
		exceptions.Panicf("bert.AttentionMask requires integer validLens, got %s", validLens.Shape())
	}
	if validLens.Rank() < 1 {
		exceptions.Panicf("bert.AttentionMask requires validLens shaped [batch_size] or [batch_size, seq_len], got %s",
			validLens.Shape())
	}
	batchSize := validLens.Shape().Dimensions[0]
	var lens *Node
	switch validLens.Rank() {
	case 1:
		lens = Reshape(validLens, batchSize, 1, 1)
	case 2:
		if validLens.Shape().Dimensions[1] != seqLen {
			exceptions.Panicf("bert.AttentionMask with per-query validLens requires shape [batch_size, seq_len=%d], got %s",
				seqLen, validLens.Shape())
		}
		lens = InsertAxes(validLens, -1)
	default:
		exceptions.Panicf("bert.AttentionMask requires validLens shaped [batch_size] or [batch_size, seq_len], got %s",
			validLens.Shape())
	}
	lens = BroadcastToDims(lens, batchSize, seqLen, seqLen)
	keyIndices := Iota(g, shapes.Make(dtype, batchSize, seqLen, seqLen), 2)
	return LessThan(keyIndices, lens)
}
