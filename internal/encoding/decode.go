package encoding

import (
	"fmt"

	"mutation-ner/internal/labels"
)

// Argmax reduces per-subword class scores to predicted class indices. logits
// is flat [size * seqLen * numClasses] as produced by the model session.
func Argmax(logits []float32, size, seqLen, numClasses int) ([][]int, error) {
	if len(logits) != size*seqLen*numClasses {
		return nil, fmt.Errorf("logits length %d does not match %d x %d x %d", len(logits), size, seqLen, numClasses)
	}

	preds := make([][]int, size)
	for i := 0; i < size; i++ {
		preds[i] = make([]int, seqLen)
		for j := 0; j < seqLen; j++ {
			offset := (i*seqLen + j) * numClasses
			best, bestScore := 0, logits[offset]
			for k := 1; k < numClasses; k++ {
				if logits[offset+k] > bestScore {
					best, bestScore = k, logits[offset+k]
				}
			}
			preds[i][j] = best
		}
	}
	return preds, nil
}

// AlignPredictions converts per-subword predictions back to word-level label
// sequences. Positions whose gold label is the ignore sentinel are skipped in
// both outputs, so the results line up with the original words and are
// suitable for span-based scoring.
func AlignPredictions(preds [][]int, labelIDs [][]int64, vocab *labels.Vocabulary) (predsList, outLabelList [][]string, err error) {
	if len(preds) != len(labelIDs) {
		return nil, nil, fmt.Errorf("got %d prediction rows for %d label rows", len(preds), len(labelIDs))
	}

	predsList = make([][]string, len(preds))
	outLabelList = make([][]string, len(preds))
	for i := range preds {
		if len(preds[i]) != len(labelIDs[i]) {
			return nil, nil, fmt.Errorf("row %d: %d predictions for %d labels", i, len(preds[i]), len(labelIDs[i]))
		}
		for j := range preds[i] {
			if labelIDs[i][j] == IgnoreIndex {
				continue
			}

			gold, err := vocab.Tag(int(labelIDs[i][j]))
			if err != nil {
				return nil, nil, fmt.Errorf("decoding gold label at (%d, %d): %w", i, j, err)
			}
			pred, err := vocab.Tag(preds[i][j])
			if err != nil {
				return nil, nil, fmt.Errorf("decoding prediction at (%d, %d): %w", i, j, err)
			}

			outLabelList[i] = append(outLabelList[i], gold)
			predsList[i] = append(predsList[i], pred)
		}
	}
	return predsList, outLabelList, nil
}
