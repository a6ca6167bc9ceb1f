// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bert

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// MLMLoss returns the cross-entropy of the MaskLM logits, one value per prediction, without reduction.
//
//   - mlmYHat: logits shaped [batch_size, num_preds, vocab_size].
//   - mlmY: integer labels (the original token ids) shaped [batch_size, num_preds].
//   - weights: optional (can be nil) weights shaped [batch_size, num_preds], multiplied to each loss.
//     Use 0 for the padded predictions.
//
// It returns the losses flattened, shaped [batch_size * num_preds].
func MLMLoss(mlmYHat, mlmY, weights *Node) *Node {
	if mlmYHat.Rank() != 3 {
		exceptions.Panicf("bert.MLMLoss requires logits shaped [batch_size, num_preds, vocab_size], got %s", mlmYHat.Shape())
	}
	batchSize, numPreds, vocabSize := mlmYHat.Shape().Dimensions[0], mlmYHat.Shape().Dimensions[1], mlmYHat.Shape().Dimensions[2]
	if !mlmY.DType().IsInt() || mlmY.Rank() != 2 ||
		mlmY.Shape().Dimensions[0] != batchSize || mlmY.Shape().Dimensions[1] != numPreds {
		exceptions.Panicf("bert.MLMLoss requires integer labels shaped [batch_size, num_preds] (logits shape is %s), got %s",
			mlmYHat.Shape(), mlmY.Shape())
	}
	logits := Reshape(mlmYHat, -1, vocabSize)
	labels := Reshape(mlmY, -1)
	return crossEntropy(logits, labels, weights)
}

// NSPLoss returns the cross-entropy of the NextSentencePred logits (shaped [batch_size, NumNSPClasses])
// for each example, given the integer labels nspY shaped [batch_size].
func NSPLoss(nspYHat, nspY *Node) *Node {
	if nspYHat.Rank() != 2 || nspY.Rank() != 1 || !nspY.DType().IsInt() ||
		nspY.Shape().Dimensions[0] != nspYHat.Shape().Dimensions[0] {
		exceptions.Panicf("bert.NSPLoss requires logits shaped [batch_size, 2] and integer labels shaped [batch_size], got %s and %s",
			nspYHat.Shape(), nspY.Shape())
	}
	return crossEntropy(nspYHat, nspY, nil)
}

// crossEntropy of logits [n, num_classes] and labels [n], with optional weights of any shape of size n.
// It returns one loss per row, shaped [n], each multiplied by its weight.
func crossEntropy(logits, labels, weights *Node) *Node {
	numClasses := logits.Shape().Dimensions[1]
	oneHot := OneHot(labels, numClasses, logits.DType())
	values := ReduceSum(Neg(Mul(oneHot, LogSoftmax(logits, -1))), -1)
	if weights != nil {
		if weights.Shape().Size() != labels.Shape().Size() {
			exceptions.Panicf("bert: loss weights shape %s doesn't match the labels shape %s", weights.Shape(), labels.Shape())
		}
		values = Mul(values, ConvertDType(Reshape(weights, -1), values.DType()))
	}
	return values
}

// WeightedMean normalizes the already weighted loss values by the total weight:
// sum(values) / (sum(weights) + 1e-8). If weights is nil, it returns the plain mean.
//
// values are not multiplied by weights again: pass the output of MLMLoss built with the
// same weights, as in WeightedMean(MLMLoss(yHat, y, w), w).
func WeightedMean(values, weights *Node) *Node {
	if weights == nil {
		return ReduceAllMean(values)
	}
	if weights.Shape().Size() != values.Shape().Size() {
		exceptions.Panicf("bert.WeightedMean weights shape %s doesn't match the values shape %s", weights.Shape(), values.Shape())
	}
	totalWeight := ReduceAllSum(ConvertDType(weights, values.DType()))
	return Div(ReduceAllSum(values), AddScalar(totalWeight, 1e-8))
}
