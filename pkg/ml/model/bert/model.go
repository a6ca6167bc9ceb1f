// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bert

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// NextSentencePred is the next sentence prediction head: a linear classifier over x shaped
// [batch_size, cfg.NSPNumInputs], usually the transformed <cls> representation (see Model).
//
// It returns the logits shaped [batch_size, NumNSPClasses].
func NextSentencePred(ctx *context.Context, cfg *Config, x *Node) *Node {
	if x.Rank() != 2 || x.Shape().Dimensions[1] != cfg.NSPNumInputs {
		exceptions.Panicf("bert.NextSentencePred requires x shaped [batch_size, NSPNumInputs=%d], got %s",
			cfg.NSPNumInputs, x.Shape())
	}
	return layers.Dense(ctx.In("output"), x, true, NumNSPClasses)
}

// Model is the BERT pretraining forward pass: the Encoder, the MaskLM head on predPositions
// and the NextSentencePred head on the <cls> token (position 0), each in its own scope.
//
// predPositions is optional: if nil, the MaskLM head is not built and mlmYHat is nil.
//
// It returns:
//
//   - encoded: shaped [batch_size, seq_len, cfg.NumHiddens].
//   - mlmYHat: shaped [batch_size, num_preds, cfg.VocabSize].
//   - nspYHat: shaped [batch_size, NumNSPClasses].
func Model(ctx *context.Context, cfg *Config, tokens, segments, validLens, predPositions *Node) (encoded, mlmYHat, nspYHat *Node) {
	encoded = Encoder(ctx.In("encoder"), cfg, tokens, segments, validLens)
	if predPositions != nil {
		mlmYHat = MaskLM(ctx.In("mlm"), cfg, encoded, predPositions)
	}
	nspYHat = NextSentencePred(ctx.In("nsp"), cfg, Pooler(ctx.In("hidden"), cfg, encoded))
	return
}

// Pooler transforms the representation of the <cls> token, the first of the encoded sequence,
// with Tanh(Dense(cfg.NumHiddens)). It returns a tensor shaped [batch_size, cfg.NumHiddens].
func Pooler(ctx *context.Context, cfg *Config, encoded *Node) *Node {
	if encoded.Rank() != 3 {
		exceptions.Panicf("bert.Pooler requires encoded shaped [batch_size, seq_len, num_hiddens], got %s", encoded.Shape())
	}
	batchSize, hiddenDim := encoded.Shape().Dimensions[0], encoded.Shape().Dimensions[2]
	cls := Slice(encoded, AxisRange(), AxisElem(0), AxisRange())
	cls = Reshape(cls, batchSize, hiddenDim)
	return Tanh(layers.Dense(ctx, cls, true, cfg.NumHiddens))
}
