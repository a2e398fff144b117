package encoding

import (
	"testing"

	"mutation-ner/internal/labels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmax(t *testing.T) {
	// 1 sequence, 2 positions, 3 classes.
	logits := []float32{
		0.1, 0.7, 0.2,
		0.9, 0.05, 0.05,
	}

	preds, err := Argmax(logits, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 0}}, preds)
}

func TestArgmaxShapeMismatch(t *testing.T) {
	_, err := Argmax([]float32{1, 2, 3}, 1, 2, 3)
	require.Error(t, err)
}

func TestAlignPredictionsSkipsIgnoredPositions(t *testing.T) {
	vocab := labels.BuildVocabulary([][]string{{"O", "B-Gene", "I-Gene"}})

	oIdx, err := vocab.Index("O")
	require.NoError(t, err)
	bIdx, err := vocab.Index("B-Gene")
	require.NoError(t, err)

	labelIDs := [][]int64{{IgnoreIndex, int64(bIdx), IgnoreIndex, int64(oIdx), IgnoreIndex}}
	preds := [][]int{{oIdx, oIdx, bIdx, oIdx, bIdx}}

	predsList, outLabelList, err := AlignPredictions(preds, labelIDs, vocab)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"B-Gene", "O"}}, outLabelList)
	assert.Equal(t, [][]string{{"O", "O"}}, predsList)
}

func TestAlignPredictionsGoldRoundTrip(t *testing.T) {
	vocab := labels.BuildVocabulary([][]string{{"O", "B-SNP", "I-SNP", "B-RS"}})

	bSNP, err := vocab.Index("B-SNP")
	require.NoError(t, err)
	iSNP, err := vocab.Index("I-SNP")
	require.NoError(t, err)

	labelIDs := [][]int64{
		{IgnoreIndex, int64(bSNP), int64(iSNP), IgnoreIndex},
		{IgnoreIndex, IgnoreIndex},
	}

	// Feed gold labels back in as predictions: outputs must match exactly.
	preds := make([][]int, len(labelIDs))
	for i, row := range labelIDs {
		preds[i] = make([]int, len(row))
		for j, l := range row {
			if l == IgnoreIndex {
				preds[i][j] = 0
			} else {
				preds[i][j] = int(l)
			}
		}
	}

	predsList, outLabelList, err := AlignPredictions(preds, labelIDs, vocab)
	require.NoError(t, err)
	assert.Equal(t, outLabelList, predsList)
	assert.Equal(t, [][]string{{"B-SNP", "I-SNP"}}, outLabelList)
	assert.Empty(t, predsList[1])
}

func TestAlignPredictionsShapeMismatch(t *testing.T) {
	vocab := labels.BuildVocabulary([][]string{{"O"}})

	_, _, err := AlignPredictions([][]int{{0}}, [][]int64{{0}, {0}}, vocab)
	require.Error(t, err)

	_, _, err = AlignPredictions([][]int{{0, 0}}, [][]int64{{0}}, vocab)
	require.Error(t, err)
}

func TestAlignPredictionsBadIndexIsError(t *testing.T) {
	vocab := labels.BuildVocabulary([][]string{{"O"}})

	_, _, err := AlignPredictions([][]int{{42}}, [][]int64{{0}}, vocab)
	require.ErrorIs(t, err, labels.ErrTagNotInVocabulary)
}
