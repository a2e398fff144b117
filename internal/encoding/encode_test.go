package encoding

import (
	"testing"

	"mutation-ner/internal/labels"

	"github.com/daulet/tokenizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocab(t *testing.T) *labels.Vocabulary {
	t.Helper()
	return labels.BuildVocabulary([][]string{{"O", "B-Gene", "I-Gene", "B-SNP", "I-SNP", "B-RS"}})
}

func mustIndex(t *testing.T, vocab *labels.Vocabulary, tag string) int64 {
	t.Helper()
	idx, err := vocab.Index(tag)
	require.NoError(t, err)
	return int64(idx)
}

func TestAlignLabelsFirstSubwordCarriesLabel(t *testing.T) {
	vocab := testVocab(t)

	// One word split into 3 subwords, surrounded by special tokens.
	tags := []string{"B-SNP"}
	wordIDs := []int{noWord, 0, 0, 0, noWord}

	aligned, err := AlignLabels(tags, wordIDs, vocab)
	require.NoError(t, err)

	want := []int64{IgnoreIndex, mustIndex(t, vocab, "B-SNP"), IgnoreIndex, IgnoreIndex, IgnoreIndex}
	assert.Equal(t, want, aligned)
}

func TestAlignLabelsMultipleWords(t *testing.T) {
	vocab := testVocab(t)

	tags := []string{"B-Gene", "I-Gene", "O"}
	wordIDs := []int{noWord, 0, 0, 1, 2, 2, noWord}

	aligned, err := AlignLabels(tags, wordIDs, vocab)
	require.NoError(t, err)

	want := []int64{
		IgnoreIndex,
		mustIndex(t, vocab, "B-Gene"), IgnoreIndex,
		mustIndex(t, vocab, "I-Gene"),
		mustIndex(t, vocab, "O"), IgnoreIndex,
		IgnoreIndex,
	}
	assert.Equal(t, want, aligned)
}

func TestAlignLabelsLengthMatchesSubwords(t *testing.T) {
	vocab := testVocab(t)

	wordIDs := []int{noWord, 0, 1, 1, 1, 2, noWord}
	aligned, err := AlignLabels([]string{"O", "B-RS", "O"}, wordIDs, vocab)
	require.NoError(t, err)
	assert.Len(t, aligned, len(wordIDs))
}

func TestAlignLabelsExactlyOneLabeledSubwordPerWord(t *testing.T) {
	vocab := testVocab(t)

	tags := []string{"B-Gene", "I-Gene", "O", "B-SNP"}
	wordIDs := []int{noWord, 0, 0, 1, 2, 2, 2, 3, 3, noWord}

	aligned, err := AlignLabels(tags, wordIDs, vocab)
	require.NoError(t, err)

	labeled := map[int]int{}
	for i, word := range wordIDs {
		if word == noWord {
			assert.Equal(t, IgnoreIndex, aligned[i], "special token at %d must be ignored", i)
			continue
		}
		if aligned[i] != IgnoreIndex {
			labeled[word]++
			// The labeled position must be the first subword of its word.
			if i > 0 {
				assert.NotEqual(t, word, wordIDs[i-1])
			}
		}
	}
	for word := range tags {
		assert.Equal(t, 1, labeled[word], "word %d must carry exactly one label", word)
	}
}

func TestAlignLabelsVocabularyLookupFailureIsFatal(t *testing.T) {
	vocab := labels.BuildVocabulary([][]string{{"O"}})

	_, err := AlignLabels([]string{"B-Disease"}, []int{0}, vocab)
	require.ErrorIs(t, err, labels.ErrTagNotInVocabulary)
}

func TestAlignLabelsWordIndexOutOfRange(t *testing.T) {
	vocab := testVocab(t)

	_, err := AlignLabels([]string{"O"}, []int{0, 5}, vocab)
	require.Error(t, err)
}

func TestWordIndicesFromOffsets(t *testing.T) {
	words := []string{"Arg123", "His"}
	// Joined text "Arg123 His": word 0 spans [0,6), word 1 spans [7,10).
	offsets := []tokenizers.Offset{
		{0, 0},  // [CLS]
		{0, 3},  // Arg
		{3, 6},  // 123
		{7, 10}, // His
		{0, 0},  // [SEP]
	}
	mask := []uint32{1, 0, 0, 0, 1}

	assert.Equal(t, []int{noWord, 0, 0, 1, noWord}, wordIndices(words, offsets, mask))
}

func TestWordIndicesWithoutSpecialMask(t *testing.T) {
	words := []string{"rs123", "variant"}
	offsets := []tokenizers.Offset{
		{0, 0},
		{0, 2},
		{2, 5},
		{6, 13},
		{0, 0},
	}

	assert.Equal(t, []int{noWord, 0, 0, 1, noWord}, wordIndices(words, offsets, nil))
}

func TestBatchesPadToLongestSentence(t *testing.T) {
	ds := &Dataset{Sentences: []EncodedSentence{
		{InputIDs: []int64{101, 7, 102}, AttentionMask: []int64{1, 1, 1}, Labels: []int64{IgnoreIndex, 4, IgnoreIndex}},
		{InputIDs: []int64{101, 8, 9, 10, 102}, AttentionMask: []int64{1, 1, 1, 1, 1}, Labels: []int64{IgnoreIndex, 0, IgnoreIndex, 1, IgnoreIndex}},
	}}

	batches := ds.Batches(16)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, 2, b.Size)
	assert.Equal(t, 5, b.SeqLen)

	// Row 0 is padded from 3 to 5 positions.
	assert.Equal(t, []int64{101, 7, 102, 0, 0}, b.InputIDs[:5])
	assert.Equal(t, []int64{1, 1, 1, 0, 0}, b.AttentionMask[:5])
	assert.Equal(t, []int64{IgnoreIndex, 4, IgnoreIndex, IgnoreIndex, IgnoreIndex}, b.Labels[:5])
}

func TestBatchesSplitsBySize(t *testing.T) {
	ds := &Dataset{Sentences: make([]EncodedSentence, 5)}
	for i := range ds.Sentences {
		ds.Sentences[i] = EncodedSentence{InputIDs: []int64{1}, AttentionMask: []int64{1}, Labels: []int64{0}}
	}

	batches := ds.Batches(2)
	require.Len(t, batches, 3)
	assert.Equal(t, 2, batches[0].Size)
	assert.Equal(t, 2, batches[1].Size)
	assert.Equal(t, 1, batches[2].Size)
}
