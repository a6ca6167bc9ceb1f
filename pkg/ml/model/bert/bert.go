// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package bert builds a BERT encoder and its pretraining heads as GoMLX graphs.
//
// The encoder sums token, segment and learned positional embeddings and runs them through a
// stack of transformer encoder blocks (see EncoderBlock). On top of it, MaskLM predicts the
// tokens at the masked positions and NextSentencePred tells whether the second sentence followed
// the first. Model puts the three together.
//
// All functions are graph building functions: they take a *context.Context where the variables
// are created (or reused), the *Config with the hyperparameters, and *Node inputs.
//
// Example:
//
//	cfg := bert.New(10000, 768, 1024, 4, 2).WithDropout(0.2)
//	encoded := bert.Encoder(ctx.In("encoder"), cfg, tokens, segments, nil)          // [batch, seq, 768]
//	mlmLogits := bert.MaskLM(ctx.In("mlm"), cfg, encoded, predPositions)            // [batch, num_preds, 10000]
//	loss := bert.MLMLoss(mlmLogits, mlmLabels, nil)                                 // [batch * num_preds]
package bert

import (
	"github.com/gomlx/bert/pkg/ml/data/tokens"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// Hyperparameter keys for context configuration.
const (
	ParamVocabSize        = "bert_vocab_size"
	ParamNumHiddens       = "bert_num_hiddens"
	ParamFFNNumHiddens    = "bert_ffn_num_hiddens"
	ParamNumHeads         = "bert_num_heads"
	ParamNumLayers        = "bert_num_layers"
	ParamDropout          = "bert_dropout"
	ParamMaxLen           = "bert_max_len"
	ParamKeySize          = "bert_key_size"
	ParamQuerySize        = "bert_query_size"
	ParamValueSize        = "bert_value_size"
	ParamFFNNumInput      = "bert_ffn_num_input"
	ParamMLMNumInputs     = "bert_mlm_num_inputs"
	ParamNSPNumInputs     = "bert_nsp_num_inputs"
	ParamDType            = "bert_dtype"
	ParamLayerNormEpsilon = "bert_layer_norm_epsilon"
)

const (
	// DefaultMaxLen is the default number of learned positional embeddings.
	DefaultMaxLen = 1000

	// DefaultLayerNormEpsilon matches the usual LayerNorm epsilon of BERT implementations.
	DefaultLayerNormEpsilon = 1e-5

	// NumSegments is the size of the segment embedding table: sentence A and sentence B.
	NumSegments = tokens.NumSegments

	// NumNSPClasses is the number of classes of the next sentence prediction: "is next" (0) or "not next" (1).
	NumNSPClasses = 2
)

// Config holds the hyperparameters of the BERT encoder and its heads.
type Config struct {
	VocabSize     int     // Vocabulary size, number of rows of the token embedding.
	NumHiddens    int     // Hidden (model) dimension.
	FFNNumHiddens int     // Hidden dimension of the position-wise feed-forward networks.
	NumHeads      int     // Attention heads per block.
	NumLayers     int     // Number of encoder blocks.
	Dropout       float64 // Dropout rate, only applied when training.
	MaxLen        int     // Max sequence length: size of the learned positional embedding.

	// KeySize, QuerySize and ValueSize are the input dimensions of the attention projections.
	KeySize, QuerySize, ValueSize int

	FFNNumInput  int // Input dimension of the position-wise feed-forward networks.
	MLMNumInputs int // Input dimension of the MaskLM head.
	NSPNumInputs int // Input dimension of the NextSentencePred head.

	DType            dtypes.DType // Data type of the variables and embeddings.
	LayerNormEpsilon float64
}

// New creates a BERT configuration. The remaining hyperparameters default to values that
// compose with numHiddens; use the With* methods or FromContext to change them.
func New(vocabSize, numHiddens, ffnNumHiddens, numHeads, numLayers int) *Config {
	return &Config{
		VocabSize:        vocabSize,
		NumHiddens:       numHiddens,
		FFNNumHiddens:    ffnNumHiddens,
		NumHeads:         numHeads,
		NumLayers:        numLayers,
		MaxLen:           DefaultMaxLen,
		KeySize:          numHiddens,
		QuerySize:        numHiddens,
		ValueSize:        numHiddens,
		FFNNumInput:      numHiddens,
		MLMNumInputs:     numHiddens,
		NSPNumInputs:     numHiddens,
		DType:            dtypes.Float32,
		LayerNormEpsilon: DefaultLayerNormEpsilon,
	}
}

// NewFromContext creates a configuration from the context hyperparameters.
//
// The keys ParamVocabSize, ParamNumHiddens, ParamFFNNumHiddens, ParamNumHeads and ParamNumLayers
// are required. The optional ones are read with FromContext.
//
// Example:
//
//	ctx.SetParams(map[string]any{
//	    bert.ParamVocabSize:     10000,
//	    bert.ParamNumHiddens:    768,
//	    bert.ParamFFNNumHiddens: 1024,
//	    bert.ParamNumHeads:      4,
//	    bert.ParamNumLayers:     2,
//	})
//	cfg, err := bert.NewFromContext(ctx)
func NewFromContext(ctx *context.Context) (*Config, error) {
	required := []string{ParamVocabSize, ParamNumHiddens, ParamFFNNumHiddens, ParamNumHeads, ParamNumLayers}
	values := make([]int, len(required))
	for ii, key := range required {
		value, found := ctx.GetParam(key)
		if !found {
			return nil, errors.Errorf("required hyperparameter %q not found in context (scope %q)", key, ctx.Scope())
		}
		intValue, ok := value.(int)
		if !ok {
			return nil, errors.Errorf("hyperparameter %q must be an int, got %T (%v)", key, value, value)
		}
		values[ii] = intValue
	}
	cfg := New(values[0], values[1], values[2], values[3], values[4])
	if err := cfg.FromContext(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromContext overrides the optional hyperparameters with the ones set in the context.
// Sizes derived from NumHiddens follow it, unless they are set explicitly.
func (cfg *Config) FromContext(ctx *context.Context) error {
	cfg.Dropout = context.GetParamOr(ctx, ParamDropout, cfg.Dropout)
	cfg.MaxLen = context.GetParamOr(ctx, ParamMaxLen, cfg.MaxLen)
	cfg.KeySize = context.GetParamOr(ctx, ParamKeySize, cfg.KeySize)
	cfg.QuerySize = context.GetParamOr(ctx, ParamQuerySize, cfg.QuerySize)
	cfg.ValueSize = context.GetParamOr(ctx, ParamValueSize, cfg.ValueSize)
	cfg.FFNNumInput = context.GetParamOr(ctx, ParamFFNNumInput, cfg.FFNNumInput)
	cfg.MLMNumInputs = context.GetParamOr(ctx, ParamMLMNumInputs, cfg.MLMNumInputs)
	cfg.NSPNumInputs = context.GetParamOr(ctx, ParamNSPNumInputs, cfg.NSPNumInputs)
	cfg.LayerNormEpsilon = context.GetParamOr(ctx, ParamLayerNormEpsilon, cfg.LayerNormEpsilon)

	// DType is given as a string.
	dtypeStr := context.GetParamOr(ctx, ParamDType, "")
	if dtypeStr != "" {
		dtype, err := dtypes.DTypeString(dtypeStr)
		if err != nil {
			return errors.Wrapf(err, "invalid hyperparameter %s=%q", ParamDType, dtypeStr)
		}
		cfg.DType = dtype
	}
	return nil
}

// SetInContext writes the configuration as hyperparameters in the context, so it can be listed,
// changed from the command line (see commandline.ParseContextSettings) and read back with
// NewFromContext.
func (cfg *Config) SetInContext(ctx *context.Context) {
	ctx.SetParams(map[string]any{
		ParamVocabSize:        cfg.VocabSize,
		ParamNumHiddens:       cfg.NumHiddens,
		ParamFFNNumHiddens:    cfg.FFNNumHiddens,
		ParamNumHeads:         cfg.NumHeads,
		ParamNumLayers:        cfg.NumLayers,
		ParamDropout:          cfg.Dropout,
		ParamMaxLen:           cfg.MaxLen,
		ParamKeySize:          cfg.KeySize,
		ParamQuerySize:        cfg.QuerySize,
		ParamValueSize:        cfg.ValueSize,
		ParamFFNNumInput:      cfg.FFNNumInput,
		ParamMLMNumInputs:     cfg.MLMNumInputs,
		ParamNSPNumInputs:     cfg.NSPNumInputs,
		ParamDType:            cfg.DType.String(),
		ParamLayerNormEpsilon: cfg.LayerNormEpsilon,
	})
}

// Validate checks that the hyperparameters are consistent.
func (cfg *Config) Validate() error {
	positives := []struct {
		name  string
		value int
	}{
		{"VocabSize", cfg.VocabSize},
		{"NumHiddens", cfg.NumHiddens},
		{"FFNNumHiddens", cfg.FFNNumHiddens},
		{"NumHeads", cfg.NumHeads},
		{"NumLayers", cfg.NumLayers},
		{"MaxLen", cfg.MaxLen},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return errors.Errorf("bert.Config.%s must be > 0, got %d", p.name, p.value)
		}
	}
	if cfg.NumHiddens%cfg.NumHeads != 0 {
		return errors.Errorf("bert.Config.NumHiddens (%d) must be divisible by NumHeads (%d)",
			cfg.NumHiddens, cfg.NumHeads)
	}
	matches := []struct {
		name  string
		value int
	}{
		{"KeySize", cfg.KeySize},
		{"QuerySize", cfg.QuerySize},
		{"ValueSize", cfg.ValueSize},
		{"FFNNumInput", cfg.FFNNumInput},
		{"MLMNumInputs", cfg.MLMNumInputs},
		{"NSPNumInputs", cfg.NSPNumInputs},
	}
	for _, m := range matches {
		if m.value != cfg.NumHiddens {
			return errors.Errorf("bert.Config.%s (%d) must be equal to NumHiddens (%d), since it takes the output of the encoder blocks",
				m.name, m.value, cfg.NumHiddens)
		}
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return errors.Errorf("bert.Config.Dropout must be in [0, 1), got %g", cfg.Dropout)
	}
	if !cfg.DType.IsFloat() {
		return errors.Errorf("bert.Config.DType must be a float type, got %s", cfg.DType)
	}
	if cfg.LayerNormEpsilon <= 0 {
		return errors.Errorf("bert.Config.LayerNormEpsilon must be > 0, got %g", cfg.LayerNormEpsilon)
	}
	return nil
}

// HeadDim is the dimension of each attention head.
func (cfg *Config) HeadDim() int {
	return cfg.NumHiddens / cfg.NumHeads
}

// WithDropout sets the dropout rate.
func (cfg *Config) WithDropout(rate float64) *Config {
	cfg.Dropout = rate
	return cfg
}

// WithMaxLen sets the number of learned positional embeddings.
func (cfg *Config) WithMaxLen(maxLen int) *Config {
	cfg.MaxLen = maxLen
	return cfg
}

// WithDType sets the data type.
func (cfg *Config) WithDType(dtype dtypes.DType) *Config {
	cfg.DType = dtype
	return cfg
}

// WithLayerNormEpsilon sets the epsilon of the layer normalizations.
func (cfg *Config) WithLayerNormEpsilon(epsilon float64) *Config {
	cfg.LayerNormEpsilon = epsilon
	return cfg
}
