package encoding

import (
	"fmt"
	"strings"

	"mutation-ner/internal/labels"

	"github.com/daulet/tokenizers"
)

// IgnoreIndex is the label value excluded from loss and metric computation.
// It marks special tokens, continuation subwords, and padding.
const IgnoreIndex int64 = -100

// noWord marks subword positions that do not map to any source word, i.e.
// special tokens inserted by the tokenizer.
const noWord = -1

// EncodedSentence holds one sentence after subword tokenization and label
// alignment. All three slices have the same length.
type EncodedSentence struct {
	InputIDs      []int64
	AttentionMask []int64
	Labels        []int64
}

type Encoder struct {
	tokenizer *tokenizers.Tokenizer
	vocab     *labels.Vocabulary
	maxSeqLen int
}

// NewEncoder loads the tokenizer for the given base model checkpoint. The
// vocabulary must be the one built from the cleaned training corpus; the same
// encoder instance is reused read-only for train, validation, and test splits.
func NewEncoder(checkpoint string, vocab *labels.Vocabulary, maxSeqLen int) (*Encoder, error) {
	tk, err := tokenizers.FromPretrained(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer for %s: %w", checkpoint, err)
	}
	return &Encoder{tokenizer: tk, vocab: vocab, maxSeqLen: maxSeqLen}, nil
}

func (e *Encoder) Close() {
	e.tokenizer.Close()
}

// EncodeSentence tokenizes one pre-split sentence and aligns its cleaned tags
// to the subword sequence. tags must already be normalized.
func (e *Encoder) EncodeSentence(tokens, tags []string) (EncodedSentence, error) {
	if len(tokens) != len(tags) {
		return EncodedSentence{}, fmt.Errorf("sentence has %d tokens but %d tags", len(tokens), len(tags))
	}

	text := strings.Join(tokens, " ")
	enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAllAttributes())

	wordIDs := wordIndices(tokens, enc.Offsets, enc.SpecialTokensMask)

	seqLen := len(enc.IDs)
	if e.maxSeqLen > 0 && seqLen > e.maxSeqLen {
		seqLen = e.maxSeqLen
	}

	aligned, err := AlignLabels(tags, wordIDs[:seqLen], e.vocab)
	if err != nil {
		return EncodedSentence{}, err
	}

	out := EncodedSentence{
		InputIDs:      make([]int64, seqLen),
		AttentionMask: make([]int64, seqLen),
		Labels:        aligned,
	}
	for i := 0; i < seqLen; i++ {
		out.InputIDs[i] = int64(enc.IDs[i])
		if len(enc.AttentionMask) > i {
			out.AttentionMask[i] = int64(enc.AttentionMask[i])
		} else {
			out.AttentionMask[i] = 1
		}
	}
	return out, nil
}

// EncodeCorpus encodes every sentence of a split against the shared
// vocabulary.
func (e *Encoder) EncodeCorpus(sentences [][]string, tags [][]string) (*Dataset, error) {
	if len(sentences) != len(tags) {
		return nil, fmt.Errorf("corpus has %d sentences but %d tag sequences", len(sentences), len(tags))
	}

	ds := &Dataset{Sentences: make([]EncodedSentence, 0, len(sentences))}
	for i := range sentences {
		enc, err := e.EncodeSentence(sentences[i], tags[i])
		if err != nil {
			return nil, fmt.Errorf("encoding sentence %d: %w", i, err)
		}
		ds.Sentences = append(ds.Sentences, enc)
	}
	return ds, nil
}

// AlignLabels produces the per-subword label sequence for one sentence.
// wordIDs maps each subword position to its source word index, or noWord for
// special tokens. Only the first subword of each word carries the real label
// index; every other position gets IgnoreIndex. A tag missing from the
// vocabulary is a fatal lookup error, never a silent substitution.
func AlignLabels(tags []string, wordIDs []int, vocab *labels.Vocabulary) ([]int64, error) {
	aligned := make([]int64, len(wordIDs))
	previousWord := noWord
	for i, word := range wordIDs {
		switch {
		case word == noWord:
			aligned[i] = IgnoreIndex
		case word != previousWord:
			if word < 0 || word >= len(tags) {
				return nil, fmt.Errorf("subword %d maps to word %d outside sentence of %d words", i, word, len(tags))
			}
			idx, err := vocab.Index(tags[word])
			if err != nil {
				return nil, fmt.Errorf("aligning word %d: %w", word, err)
			}
			aligned[i] = int64(idx)
		default:
			aligned[i] = IgnoreIndex
		}
		previousWord = word
	}
	return aligned, nil
}

// wordIndices reconstructs the subword-to-word mapping from character offsets.
// The sentence text is the words joined by single spaces, so word w spans a
// known half-open byte range; a subword belongs to the word containing its
// start offset. Special tokens map to noWord.
func wordIndices(words []string, offsets []tokenizers.Offset, specialMask []uint32) []int {
	ends := make([]int, len(words))
	pos := 0
	for i, w := range words {
		pos += len(w)
		ends[i] = pos
		pos++ // joining space
	}

	ids := make([]int, len(offsets))
	word := 0
	for i, off := range offsets {
		if isSpecial(i, off, specialMask) {
			ids[i] = noWord
			continue
		}
		start := int(off[0])
		for word < len(ends) && start >= ends[word] {
			word++
		}
		if word >= len(ends) {
			ids[i] = noWord
			continue
		}
		ids[i] = word
	}
	return ids
}

func isSpecial(i int, off tokenizers.Offset, specialMask []uint32) bool {
	if len(specialMask) > i {
		return specialMask[i] != 0
	}
	// Fallback when the tokenizer does not report the mask: special tokens
	// carry a zero-width offset.
	return off[0] == 0 && off[1] == 0
}
