// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bert

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"k8s.io/klog/v2"
)

// Encoder is the BERT encoder: it embeds tokens and segments, adds the learned positional
// embedding, and runs the result through cfg.NumLayers EncoderBlock.
//
// Inputs:
//
//   - tokens: integer token ids shaped [batch_size, seq_len], each < cfg.VocabSize.
//   - segments: integer segment ids (0 or 1) with the same shape of tokens.
//   - validLens: optional (can be nil), see AttentionMask.
//
// It returns the encoded sequence shaped [batch_size, seq_len, cfg.NumHiddens].
// The values of tokens and segments are not checked in the graph.
func Encoder(ctx *context.Context, cfg *Config, tokens, segments, validLens *Node) *Node {
	x := Embeddings(ctx, cfg, tokens, segments)
	for layer := range cfg.NumLayers {
		x = EncoderBlock(ctx.Inf("block_%d", layer), cfg, x, validLens)
	}
	return x
}

// Embeddings returns the sum of the token, segment and positional embeddings, shaped
// [batch_size, seq_len, cfg.NumHiddens]. See Encoder for the inputs.
//
// The positional embedding is one learned variable shaped [1, cfg.MaxLen, cfg.NumHiddens],
// initialized with a standard normal distribution, of which only the first seq_len
// positions are used.
func Embeddings(ctx *context.Context, cfg *Config, tokens, segments *Node) *Node {
	if tokens.Rank() != 2 || !tokens.DType().IsInt() {
		exceptions.Panicf("bert.Encoder requires integer tokens shaped [batch_size, seq_len], got %s", tokens.Shape())
	}
	if !segments.DType().IsInt() || !tokens.Shape().EqualDimensions(segments.Shape()) {
		exceptions.Panicf("bert.Encoder requires integer segments with the same shape as tokens (%s), got %s",
			tokens.Shape(), segments.Shape())
	}
	g := tokens.Graph()
	batchSize, seqLen := tokens.Shape().Dimensions[0], tokens.Shape().Dimensions[1]
	if seqLen > cfg.MaxLen {
		exceptions.Panicf("bert.Encoder sequence length %d is larger than MaxLen=%d", seqLen, cfg.MaxLen)
	}
	klog.V(2).Infof("bert.Embeddings(scope=%q, tokens=%s)", ctx.Scope(), tokens.Shape())

	// Embedding looks up the last axis, so we make it explicit: this way seq_len=1 also works.
	x := layers.Embedding(ctx.In("token_embedding"), InsertAxes(tokens, -1), cfg.DType, cfg.VocabSize, cfg.NumHiddens)
	segmentEmbed := layers.Embedding(ctx.In("segment_embedding"), InsertAxes(segments, -1), cfg.DType, NumSegments, cfg.NumHiddens)
	x = Add(x, segmentEmbed)

	posCtx := ctx.In("pos_embedding").WithInitializer(initializers.RandomNormalFn(ctx, 1.0))
	posEmbed := posCtx.VariableWithShape("embeddings", shapes.Make(cfg.DType, 1, cfg.MaxLen, cfg.NumHiddens)).ValueGraph(g)
	posEmbed = Slice(posEmbed, AxisRange(), AxisRange(0, seqLen), AxisRange())
	posEmbed = BroadcastToDims(posEmbed, batchSize, seqLen, cfg.NumHiddens)
	return Add(x, posEmbed)
}
