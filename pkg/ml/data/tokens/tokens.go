// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tokens assembles the tagged token sequences fed to a BERT encoder.
//
// A BERT input is either one sentence or a pair of sentences, always starting with the
// classification token and with each sentence terminated by a separator:
//
//	<cls> tokens_a... <sep>                       segments: 0 0 ... 0
//	<cls> tokens_a... <sep> tokens_b... <sep>     segments: 0 0 ... 0 1 ... 1
//
// Converting the tokens to ids and padding them into batches is left to the caller.
package tokens

import (
	"slices"

	"github.com/pkg/errors"
)

// Special tokens used by BERT inputs.
const (
	CLS  = "<cls>"
	SEP  = "<sep>"
	Pad  = "<pad>"
	Mask = "<mask>"
	Unk  = "<unk>"
)

// Segment ids: the first sentence (and its <cls> and <sep>) is tagged SegmentA, the second
// sentence and its closing <sep> SegmentB.
const (
	SegmentA = 0
	SegmentB = 1

	// NumSegments is the size of the segment embedding table.
	NumSegments = 2
)

// TokensAndSegments returns the tokens of one sentence (tokensB == nil) or a pair of sentences,
// tagged with <cls> and <sep>, and the segment id of each token.
//
// A non-nil empty tokensB is still a second sentence: it contributes one <sep> with segment 1.
// The input slices are not modified.
func TokensAndSegments(tokensA, tokensB []string) (tokens []string, segments []int) {
	size := len(tokensA) + 2
	if tokensB != nil {
		size += len(tokensB) + 1
	}
	tokens = make([]string, 0, size)
	segments = make([]int, 0, size)

	tokens = append(tokens, CLS)
	tokens = append(tokens, tokensA...)
	tokens = append(tokens, SEP)
	segments = appendSegment(segments, SegmentA, len(tokensA)+2)
	if tokensB != nil {
		tokens = append(tokens, tokensB...)
		tokens = append(tokens, SEP)
		segments = appendSegment(segments, SegmentB, len(tokensB)+1)
	}
	return
}

func appendSegment(segments []int, segment, n int) []int {
	for range n {
		segments = append(segments, segment)
	}
	return segments
}

// AsBatch converts equally sized rows of ids (e.g.: segments returned by TokensAndSegments) to an
// int32 matrix shaped [batch_size, sequence_len], ready to be fed to the encoder.
//
// Rows of different lengths are an error: padding is a batching decision left to the caller.
func AsBatch(rows ...[]int) ([][]int32, error) {
	if len(rows) == 0 {
		return nil, errors.New("tokens.AsBatch requires at least one row")
	}
	seqLen := len(rows[0])
	batch := make([][]int32, len(rows))
	for rowIdx, row := range rows {
		if len(row) != seqLen {
			return nil, errors.Errorf("row #%d has length %d, but row #0 has length %d: rows must be padded to the same length",
				rowIdx, len(row), seqLen)
		}
		batch[rowIdx] = make([]int32, seqLen)
		for ii, id := range row {
			batch[rowIdx][ii] = int32(id)
		}
	}
	return batch, nil
}

// ValidateSegments checks that segments follow the layout produced by TokensAndSegments:
// only SegmentA and SegmentB values, and never going back from SegmentB to SegmentA.
func ValidateSegments(segments []int) error {
	idx := slices.IndexFunc(segments, func(s int) bool { return s != SegmentA && s != SegmentB })
	if idx >= 0 {
		return errors.Errorf("segment #%d has invalid value %d, only %d or %d are valid",
			idx, segments[idx], SegmentA, SegmentB)
	}
	if !slices.IsSorted(segments) {
		return errors.Errorf("segments %v go back from segment %d to segment %d", segments, SegmentB, SegmentA)
	}
	return nil
}
