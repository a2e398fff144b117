package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// Span is one entity span extracted from an IOB2 tag sequence, identified by
// its type and half-open word range.
type Span struct {
	Type  string
	Start int
	End   int
}

// ExtractSpans converts an IOB2 tag sequence into entity spans. A span opens
// at a B- tag, or at an I- tag whose type does not continue the previous
// position, and closes before any tag that is not an I- of the same type.
func ExtractSpans(tags []string) []Span {
	var spans []Span
	var open *Span

	closeSpan := func(end int) {
		if open != nil {
			open.End = end
			spans = append(spans, *open)
			open = nil
		}
	}

	for i, tag := range tags {
		prefix, entityType := splitTag(tag)
		switch prefix {
		case "B":
			closeSpan(i)
			open = &Span{Type: entityType, Start: i}
		case "I":
			if open == nil || open.Type != entityType {
				closeSpan(i)
				open = &Span{Type: entityType, Start: i}
			}
		default:
			closeSpan(i)
		}
	}
	closeSpan(len(tags))

	return spans
}

func splitTag(tag string) (prefix, entityType string) {
	if len(tag) > 2 && (tag[0] == 'B' || tag[0] == 'I') && tag[1] == '-' {
		return tag[:1], tag[2:]
	}
	return "", ""
}

// Scores holds span-level precision/recall/F1 for one entity type.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a span-level classification report over every entity type seen in
// the gold annotations or the predictions, plus a micro average.
type Report struct {
	PerType  map[string]Scores
	MicroAvg Scores
}

type counts struct {
	truePositive int
	predicted    int
	gold         int
}

// Classify scores predicted against gold label sequences span by span. A
// predicted span counts as correct only on an exact type and boundary match.
func Classify(goldSeqs, predSeqs [][]string) (*Report, error) {
	if len(goldSeqs) != len(predSeqs) {
		return nil, fmt.Errorf("got %d gold sequences but %d predicted", len(goldSeqs), len(predSeqs))
	}

	byType := map[string]*counts{}
	get := func(entityType string) *counts {
		c, ok := byType[entityType]
		if !ok {
			c = &counts{}
			byType[entityType] = c
		}
		return c
	}

	for i := range goldSeqs {
		if len(goldSeqs[i]) != len(predSeqs[i]) {
			return nil, fmt.Errorf("sequence %d: %d gold tags but %d predicted", i, len(goldSeqs[i]), len(predSeqs[i]))
		}

		goldSpans := ExtractSpans(goldSeqs[i])
		predSpans := ExtractSpans(predSeqs[i])

		goldSet := make(map[Span]struct{}, len(goldSpans))
		for _, s := range goldSpans {
			goldSet[s] = struct{}{}
			get(s.Type).gold++
		}
		for _, s := range predSpans {
			get(s.Type).predicted++
			if _, ok := goldSet[s]; ok {
				get(s.Type).truePositive++
			}
		}
	}

	report := &Report{PerType: make(map[string]Scores, len(byType))}
	var total counts
	for entityType, c := range byType {
		report.PerType[entityType] = score(c)
		total.truePositive += c.truePositive
		total.predicted += c.predicted
		total.gold += c.gold
	}
	report.MicroAvg = score(&total)

	return report, nil
}

func score(c *counts) Scores {
	s := Scores{Support: c.gold}
	if c.predicted > 0 {
		s.Precision = float64(c.truePositive) / float64(c.predicted)
	}
	if c.gold > 0 {
		s.Recall = float64(c.truePositive) / float64(c.gold)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// String renders the report as an aligned text table, one row per entity type
// in lexical order, with the micro average last.
func (r *Report) String() string {
	types := make([]string, 0, len(r.PerType))
	for entityType := range r.PerType {
		types = append(types, entityType)
	}
	sort.Strings(types)

	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	b.WriteString("\n")
	for _, entityType := range types {
		s := r.PerType[entityType]
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", entityType, s.Precision, s.Recall, s.F1, s.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", "micro avg", r.MicroAvg.Precision, r.MicroAvg.Recall, r.MicroAvg.F1, r.MicroAvg.Support)
	return b.String()
}
