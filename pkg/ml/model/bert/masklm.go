// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bert

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// MaskLM is the masked language model head: it predicts the original tokens at the
// positions predPositions of the encoded sequence x.
//
//   - x: output of Encoder, shaped [batch_size, seq_len, cfg.MLMNumInputs].
//   - predPositions: integer positions shaped [batch_size, num_preds], each < seq_len.
//
// The hidden states at the positions are gathered (see GatherPositions) and go through
// Dense(cfg.NumHiddens) -> ReLU -> LayerNorm -> Dense(cfg.VocabSize).
// The layer normalization is configured like the one of the encoder blocks, see layerNorm.
//
// It returns the logits shaped [batch_size, num_preds, cfg.VocabSize].
func MaskLM(ctx *context.Context, cfg *Config, x, predPositions *Node) *Node {
	if x.Rank() == 3 && x.Shape().Dimensions[2] != cfg.MLMNumInputs {
		exceptions.Panicf("bert.MaskLM requires x embedding dimension MLMNumInputs=%d, got x.shape=%s",
			cfg.MLMNumInputs, x.Shape())
	}
	maskedX := GatherPositions(x, predPositions)
	h := layers.Dense(ctx.In("dense_0"), maskedX, true, cfg.NumHiddens)
	h = activations.Relu(h)
	h = layerNorm(ctx.In("layer_norm"), cfg, h)
	return layers.Dense(ctx.In("dense_1"), h, true, cfg.VocabSize)
}

// GatherPositions returns x[b, predPositions[b, i], :] for every example b and prediction i, that is,
// the hidden states at the predicted positions, shaped [batch_size, num_preds, hidden_dim].
//
// x is shaped [batch_size, seq_len, hidden_dim] and predPositions [batch_size, num_preds].
//
// The positions are flattened and paired with the example index each one belongs to (see BatchIndices),
// so a single Gather collects them all. Positions out of [0, seq_len) are not checked.
func GatherPositions(x, predPositions *Node) *Node {
	if x.Rank() != 3 {
		exceptions.Panicf("bert.GatherPositions requires x shaped [batch_size, seq_len, hidden_dim], got %s", x.Shape())
	}
	if predPositions.Rank() != 2 || !predPositions.DType().IsInt() {
		exceptions.Panicf("bert.GatherPositions requires integer predPositions shaped [batch_size, num_preds], got %s",
			predPositions.Shape())
	}
	batchSize, hiddenDim := x.Shape().Dimensions[0], x.Shape().Dimensions[2]
	if predPositions.Shape().Dimensions[0] != batchSize {
		exceptions.Panicf("bert.GatherPositions: predPositions batch size (%s) doesn't match x batch size (%s)",
			predPositions.Shape(), x.Shape())
	}
	numPreds := predPositions.Shape().Dimensions[1]
	if numPreds == 0 {
		exceptions.Panicf("bert.GatherPositions requires at least one position per example, got predPositions.shape=%s",
			predPositions.Shape())
	}

	batchIdx := BatchIndices(x.Graph(), predPositions.DType(), batchSize, numPreds)
	flatPositions := Reshape(predPositions, batchSize*numPreds)
	indices := Concatenate([]*Node{InsertAxes(batchIdx, -1), InsertAxes(flatPositions, -1)}, -1) // [batch*num_preds, 2]
	maskedX := Gather(x, indices)                                                                 // [batch*num_preds, hidden_dim]
	return Reshape(maskedX, batchSize, numPreds, hiddenDim)
}

// BatchIndices returns the example index of each of the flattened batchSize*numPreds predictions,
// each index repeated numPreds times: e.g. batchSize=2, numPreds=3 returns [0, 0, 0, 1, 1, 1].
func BatchIndices(g *Graph, dtype dtypes.DType, batchSize, numPreds int) *Node {
	return Reshape(Iota(g, shapes.Make(dtype, batchSize, numPreds), 0), batchSize*numPreds)
}
