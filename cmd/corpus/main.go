package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"mutation-ner/internal/corpus"
	"mutation-ner/internal/labels"
)

// Downloads an IOB corpus, normalizes its tags, and prints sentence and tag
// statistics. Useful for sanity checking a corpus source before pointing a
// sweep at it.
func main() {
	var source, cacheDir string
	flag.StringVar(&source, "source", "", "corpus url or local file path")
	flag.StringVar(&cacheDir, "cache", "./mutation-ner/corpus", "directory for cached downloads")
	flag.Parse()

	if source == "" {
		log.Fatalf("-source is required")
	}

	loader := corpus.NewLoader(cacheDir)
	sentences, err := loader.Load(context.Background(), source)
	if err != nil {
		log.Fatalf("error loading corpus: %v", err)
	}

	corpusTags := make([][]string, len(sentences))
	tokenCount := 0
	for i, sentence := range sentences {
		corpusTags[i] = sentence.Tags
		tokenCount += len(sentence.Tokens)
	}
	corpusTags = labels.NormalizeAll(corpusTags, labels.ExpectedTags())

	counts := make(map[string]int)
	for _, tags := range corpusTags {
		for _, tag := range tags {
			counts[tag]++
		}
	}

	vocab := labels.BuildVocabulary(corpusTags)

	fmt.Printf("source: %s\n", source)
	fmt.Printf("sentences: %d\n", len(sentences))
	fmt.Printf("tokens: %d\n", tokenCount)
	fmt.Printf("labels: %d\n", vocab.Size())

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "tag\tcount\tindex")
	for _, tag := range tags {
		idx, err := vocab.Index(tag)
		if err != nil {
			log.Fatalf("tag %q missing from vocabulary: %v", tag, err)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", tag, counts[tag], idx)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("error writing stats: %v", err)
	}
}
