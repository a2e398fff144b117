package corpus

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Sentence is one annotated sentence from an IOB corpus. Tokens and Tags are
// always the same length.
type Sentence struct {
	Tokens []string
	Tags   []string
}

const commentMarker = "#"

// ParseIOB parses line-oriented IOB annotations. Lines starting with '#' end
// the current sentence; data lines are "token,tag". Blank lines are skipped
// without ending a sentence, and lines that do not split into exactly two
// comma-separated fields are dropped. Both behaviors match the corpus as
// published, even though most IOB formats use blank lines as separators.
func ParseIOB(r io.Reader) ([]Sentence, error) {
	var (
		sentences []Sentence
		tokens    []string
		tags      []string
	)

	flush := func() {
		if len(tokens) > 0 {
			sentences = append(sentences, Sentence{Tokens: tokens, Tags: tags})
			tokens, tags = nil, nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, commentMarker) {
			flush()
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			continue
		}
		tokens = append(tokens, strings.TrimSpace(parts[0]))
		tags = append(tags, strings.TrimSpace(parts[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning corpus: %w", err)
	}

	flush()

	return sentences, nil
}

// Tokens returns the token sequences of all sentences, index-aligned with Tags.
func Tokens(sentences []Sentence) [][]string {
	out := make([][]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.Tokens
	}
	return out
}

// Tags returns the tag sequences of all sentences, index-aligned with Tokens.
func Tags(sentences []Sentence) [][]string {
	out := make([][]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.Tags
	}
	return out
}
