package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"mutation-ner/internal/corpus"
	"mutation-ner/internal/encoding"
	"mutation-ner/internal/labels"
)

// Splits are the encoded datasets one trial trains and evaluates on.
type Splits struct {
	Train *encoding.Dataset
	Eval  *encoding.Dataset
	Test  *encoding.Dataset
}

// SplitProvider yields the shared label vocabulary and the encoded splits for
// a trial's base checkpoint.
type SplitProvider interface {
	Vocabulary() *labels.Vocabulary

	Splits(checkpoint string) (*Splits, error)
}

type corpusSplit struct {
	tokens [][]string
	tags   [][]string
}

// Pipeline holds everything trials share: the cleaned corpora, the label
// vocabulary, and the encoded splits per base checkpoint. It is built once
// before the first trial and treated as read-only thereafter; trials run
// serially, so the lazily filled encoding cache needs no locking.
type Pipeline struct {
	vocab     *labels.Vocabulary
	train     corpusSplit
	eval      corpusSplit
	test      corpusSplit
	maxSeqLen int

	cache map[string]*Splits
}

var _ SplitProvider = (*Pipeline)(nil)

// BuildPipeline fetches and parses both corpora, normalizes every tag against
// the expected set, carves the eval split off the tail of the training corpus,
// and builds the label vocabulary from the cleaned training data only.
func BuildPipeline(ctx context.Context, loader *corpus.Loader, cfg CorpusConfig, maxSeqLen int) (*Pipeline, error) {
	trainSentences, err := loader.Load(ctx, cfg.TrainSource)
	if err != nil {
		return nil, err
	}
	testSentences, err := loader.Load(ctx, cfg.TestSource)
	if err != nil {
		return nil, err
	}

	allowed := labels.ExpectedTags()
	trainTags := labels.NormalizeAll(corpus.Tags(trainSentences), allowed)
	testTags := labels.NormalizeAll(corpus.Tags(testSentences), allowed)

	vocab := labels.BuildVocabulary(trainTags)
	slog.Info("label vocabulary built", "size", vocab.Size(), "tags", vocab.Tags())

	trainTokens := corpus.Tokens(trainSentences)
	cut := len(trainSentences) - int(float64(len(trainSentences))*cfg.EvalFraction)
	if cut <= 0 || cut >= len(trainSentences) {
		return nil, fmt.Errorf("training corpus with %d sentences cannot be split with eval fraction %v", len(trainSentences), cfg.EvalFraction)
	}

	return &Pipeline{
		vocab:     vocab,
		train:     corpusSplit{tokens: trainTokens[:cut], tags: trainTags[:cut]},
		eval:      corpusSplit{tokens: trainTokens[cut:], tags: trainTags[cut:]},
		test:      corpusSplit{tokens: corpus.Tokens(testSentences), tags: testTags},
		maxSeqLen: maxSeqLen,
		cache:     make(map[string]*Splits),
	}, nil
}

func (p *Pipeline) Vocabulary() *labels.Vocabulary {
	return p.vocab
}

// Splits returns the encoded splits for the given checkpoint, encoding them on
// first use. Different base checkpoints tokenize differently, so each gets its
// own encoding; the label vocabulary is shared by all of them.
func (p *Pipeline) Splits(checkpoint string) (*Splits, error) {
	if cached, ok := p.cache[checkpoint]; ok {
		return cached, nil
	}

	encoder, err := encoding.NewEncoder(checkpoint, p.vocab, p.maxSeqLen)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	train, err := encoder.EncodeCorpus(p.train.tokens, p.train.tags)
	if err != nil {
		return nil, fmt.Errorf("encoding train split for %s: %w", checkpoint, err)
	}
	eval, err := encoder.EncodeCorpus(p.eval.tokens, p.eval.tags)
	if err != nil {
		return nil, fmt.Errorf("encoding eval split for %s: %w", checkpoint, err)
	}
	test, err := encoder.EncodeCorpus(p.test.tokens, p.test.tags)
	if err != nil {
		return nil, fmt.Errorf("encoding test split for %s: %w", checkpoint, err)
	}

	splits := &Splits{Train: train, Eval: eval, Test: test}
	p.cache[checkpoint] = splits

	slog.Info("encoded corpus splits", "checkpoint", checkpoint,
		"train_sentences", train.Len(), "eval_sentences", eval.Len(), "test_sentences", test.Len())

	return splits, nil
}
