// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/gomlx/bert/pkg/ml/data/tokens"
	"github.com/gomlx/bert/pkg/ml/model/bert"
	"github.com/gomlx/bert/ui/summary"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Toy batch of the demo: 2 examples of 8 tokens, 3 masked positions each.
var (
	demoSegments     = [][]int{{0, 0, 0, 0, 1, 1, 1, 1}, {0, 0, 0, 1, 1, 1, 1, 1}}
	demoMLMPositions = [][]int32{{1, 5, 2}, {6, 1, 5}}
	demoMLMLabels    = [][]int32{{7, 8, 9}, {10, 20, 30}}
	demoNSPLabels    = []int32{0, 1}

	demoSentenceA = []string{"this", "movie", "is", "great"}
	demoSentenceB = []string{"i", "like", "it"}
)

// CreateDefaultContext returns a context with the BERT hyperparameters of the demo, which
// can be overwritten with the "-set" flag.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	bert.New(10000, 768, 1024, 4, 2).
		WithDropout(0.2).
		WithMaxLen(bert.DefaultMaxLen).
		SetInContext(ctx)
	return ctx
}

// Options of the demo, set from the command line flags.
type Options struct {
	// Seed for the random tokens and the variables initialization. 0 means a random seed.
	Seed int64

	// TrainMode builds the graph in training mode, so dropout is active.
	TrainMode bool
}

// Results of one run of the demo.
type Results struct {
	Tokens          [][]int32
	ExampleTokens   []string
	ExampleSegments []int

	BatchIndices []int32
	Encoded      shapes.Shape
	MLMYHat      shapes.Shape
	MLMLoss      []float32
	MLMLossMean  float32
	NSPYHat      shapes.Shape
	NSPLoss      []float32
}

// Run builds the BERT pretraining model on a random toy batch and returns the shapes of its
// outputs and the losses.
func Run(backend backends.Backend, ctx *context.Context, opts Options) (*Results, error) {
	cfg, err := bert.NewFromContext(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid BERT hyperparameters")
	}
	if opts.Seed != 0 {
		ctx.SetParam(context.ParamInitialSeed, opts.Seed)
	}
	segments, err := tokens.AsBatch(demoSegments...)
	if err != nil {
		return nil, err
	}

	results := &Results{}
	results.ExampleTokens, results.ExampleSegments = tokens.TokensAndSegments(demoSentenceA, demoSentenceB)
	if err := tokens.ValidateSegments(results.ExampleSegments); err != nil {
		return nil, err
	}

	klog.V(1).Infof("Building BERT with %d layers, %d hiddens, %d heads (train mode: %v)",
		cfg.NumLayers, cfg.NumHiddens, cfg.NumHeads, opts.TrainMode)
	var outputs []*tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		outputs = context.MustExecOnceN(backend, ctx, func(ctx *context.Context, segments, mlmPositions, mlmY, nspY *Node) []*Node {
			g := segments.Graph()
			ctx.SetTraining(g, opts.TrainMode)
			batchSize, seqLen := segments.Shape().Dimensions[0], segments.Shape().Dimensions[1]
			numPreds := mlmPositions.Shape().Dimensions[1]
			tokenIDs := ctx.RandomIntN(g, int32(cfg.VocabSize), shapes.Make(dtypes.Int32, batchSize, seqLen))
			encoded, mlmYHat, nspYHat := bert.Model(ctx, cfg, tokenIDs, segments, nil, mlmPositions)
			mlmLoss := bert.MLMLoss(mlmYHat, mlmY, nil)
			return []*Node{
				tokenIDs,
				bert.BatchIndices(g, dtypes.Int32, batchSize, numPreds),
				encoded,
				mlmYHat,
				mlmLoss,
				bert.WeightedMean(mlmLoss, nil),
				nspYHat,
				bert.NSPLoss(nspYHat, nspY),
			}
		}, segments, demoMLMPositions, demoMLMLabels, demoNSPLabels)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to build or execute the BERT model")
	}

	results.Tokens = outputs[0].Value().([][]int32)
	results.BatchIndices = tensors.MustCopyFlatData[int32](outputs[1])
	results.Encoded = outputs[2].Shape()
	results.MLMYHat = outputs[3].Shape()
	results.MLMLoss = tensors.MustCopyFlatData[float32](outputs[4])
	results.MLMLossMean = outputs[5].Value().(float32)
	results.NSPYHat = outputs[6].Shape()
	results.NSPLoss = tensors.MustCopyFlatData[float32](outputs[7])
	return results, nil
}

// Print the results to w. If listVariables is set, it also lists the model variables.
func (r *Results) Print(w io.Writer, ctx *context.Context, listVariables bool) {
	fmt.Fprintln(w, summary.Title("TokensAndSegments"))
	fmt.Fprintf(w, "  tokens:   %q\n", r.ExampleTokens)
	fmt.Fprintf(w, "  segments: %v\n", r.ExampleSegments)

	fmt.Fprintln(w, summary.Title("Outputs"))
	fmt.Fprintln(w, summary.Shapes(
		summary.Entry{Name: "encoded_X", Shape: r.Encoded},
		summary.Entry{Name: "mlm_Y_hat", Shape: r.MLMYHat},
		summary.Entry{Name: "nsp_Y_hat", Shape: r.NSPYHat},
	))
	fmt.Fprintln(w, summary.Values(
		summary.Entry{Name: "tokens", Shape: shapes.Make(dtypes.Int32, len(r.Tokens), len(r.Tokens[0])), Value: r.Tokens},
		summary.Entry{Name: "batch_idx", Shape: shapes.Make(dtypes.Int32, len(r.BatchIndices)), Value: r.BatchIndices},
		summary.Entry{Name: "mlm_l", Shape: shapes.Make(dtypes.Float32, len(r.MLMLoss)), Value: r.MLMLoss},
		summary.Entry{Name: "mlm_l (mean)", Shape: shapes.Make(dtypes.Float32), Value: r.MLMLossMean},
		summary.Entry{Name: "nsp_l", Shape: shapes.Make(dtypes.Float32, len(r.NSPLoss)), Value: r.NSPLoss},
	))

	if listVariables {
		fmt.Fprintln(w, summary.Title("Variables"))
		fmt.Fprintln(w, summary.Variables(ctx))
		fmt.Fprintln(w, summary.Totals(ctx))
	}
}
