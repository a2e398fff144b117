package labels

import (
	"errors"
	"fmt"
	"sort"
)

// OutsideTag marks tokens that are not part of any entity span.
const OutsideTag = "O"

// ErrTagNotInVocabulary is returned when a tag is looked up against a
// vocabulary that was built without it. After normalization this can only
// happen through a programming error, so callers should treat it as fatal.
var ErrTagNotInVocabulary = errors.New("tag not in label vocabulary")

// ExpectedTags is the closed tag set of the mutation corpora. Anything else
// found in the raw annotations is noise and gets normalized to OutsideTag.
func ExpectedTags() map[string]struct{} {
	return map[string]struct{}{
		OutsideTag: {},
		"B-Gene":   {},
		"I-Gene":   {},
		"B-SNP":    {},
		"I-SNP":    {},
		"B-RS":     {},
	}
}

// Normalize maps every tag not in allowed to OutsideTag. The result is a new
// slice of the same length; the input is never mutated.
func Normalize(tags []string, allowed map[string]struct{}) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		if _, ok := allowed[tag]; ok {
			out[i] = tag
		} else {
			out[i] = OutsideTag
		}
	}
	return out
}

// NormalizeAll applies Normalize to every sentence's tag sequence.
func NormalizeAll(corpusTags [][]string, allowed map[string]struct{}) [][]string {
	out := make([][]string, len(corpusTags))
	for i, tags := range corpusTags {
		out[i] = Normalize(tags, allowed)
	}
	return out
}

// Vocabulary assigns an integer index to each distinct tag. It is built once
// from the cleaned training corpus and shared read-only by train, validation,
// and test encoding and decoding. Using different vocabularies for encoding
// and decoding silently corrupts evaluation, so there is exactly one.
type Vocabulary struct {
	tags    []string
	indices map[string]int
}

// BuildVocabulary collects the distinct tags of the cleaned training corpus.
// Tags are sorted lexically so index assignment is reproducible across runs;
// OutsideTag is always present, which guarantees every cleaned tag resolves.
func BuildVocabulary(corpusTags [][]string) *Vocabulary {
	distinct := map[string]struct{}{OutsideTag: {}}
	for _, tags := range corpusTags {
		for _, tag := range tags {
			distinct[tag] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(distinct))
	for tag := range distinct {
		sorted = append(sorted, tag)
	}
	sort.Strings(sorted)

	indices := make(map[string]int, len(sorted))
	for i, tag := range sorted {
		indices[tag] = i
	}

	return &Vocabulary{tags: sorted, indices: indices}
}

// Size returns the number of distinct tags, which is also the model's output
// class count.
func (v *Vocabulary) Size() int {
	return len(v.tags)
}

// Tags returns the vocabulary in index order. Callers must not modify it.
func (v *Vocabulary) Tags() []string {
	return v.tags
}

// Index returns the integer index of tag.
func (v *Vocabulary) Index(tag string) (int, error) {
	idx, ok := v.indices[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrTagNotInVocabulary, tag)
	}
	return idx, nil
}

// Tag returns the tag at index idx.
func (v *Vocabulary) Tag(idx int) (string, error) {
	if idx < 0 || idx >= len(v.tags) {
		return "", fmt.Errorf("%w: index %d out of range [0, %d)", ErrTagNotInVocabulary, idx, len(v.tags))
	}
	return v.tags[idx], nil
}
