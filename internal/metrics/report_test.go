package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSpans(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []Span
	}{
		{
			"single span",
			[]string{"O", "B-Gene", "I-Gene", "O"},
			[]Span{{Type: "Gene", Start: 1, End: 3}},
		},
		{
			"adjacent spans",
			[]string{"B-Gene", "B-SNP", "I-SNP"},
			[]Span{{Type: "Gene", Start: 0, End: 1}, {Type: "SNP", Start: 1, End: 3}},
		},
		{
			"span runs to end of sentence",
			[]string{"O", "B-RS"},
			[]Span{{Type: "RS", Start: 1, End: 2}},
		},
		{
			"orphan I starts a span",
			[]string{"O", "I-Gene", "I-Gene"},
			[]Span{{Type: "Gene", Start: 1, End: 3}},
		},
		{
			"type change inside I tags",
			[]string{"B-Gene", "I-SNP"},
			[]Span{{Type: "Gene", Start: 0, End: 1}, {Type: "SNP", Start: 1, End: 2}},
		},
		{
			"all outside",
			[]string{"O", "O", "O"},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSpans(tt.tags))
		})
	}
}

func TestClassifyPerfectPredictions(t *testing.T) {
	gold := [][]string{
		{"O", "B-Gene", "I-Gene", "O", "B-SNP"},
		{"B-RS", "O"},
	}

	report, err := Classify(gold, gold)
	require.NoError(t, err)

	for entityType, s := range report.PerType {
		assert.Equal(t, 1.0, s.Precision, entityType)
		assert.Equal(t, 1.0, s.Recall, entityType)
		assert.Equal(t, 1.0, s.F1, entityType)
	}
	assert.Equal(t, 1.0, report.MicroAvg.F1)
	assert.Equal(t, 3, report.MicroAvg.Support)
}

func TestClassifyBoundaryMismatchIsWrong(t *testing.T) {
	gold := [][]string{{"B-Gene", "I-Gene", "O"}}
	pred := [][]string{{"B-Gene", "O", "O"}}

	report, err := Classify(gold, pred)
	require.NoError(t, err)

	gene := report.PerType["Gene"]
	assert.Equal(t, 0.0, gene.Precision)
	assert.Equal(t, 0.0, gene.Recall)
	assert.Equal(t, 1, gene.Support)
}

func TestClassifyPartialScores(t *testing.T) {
	gold := [][]string{{"B-SNP", "O", "B-SNP", "O"}}
	pred := [][]string{{"B-SNP", "O", "O", "B-SNP"}}

	report, err := Classify(gold, pred)
	require.NoError(t, err)

	snp := report.PerType["SNP"]
	assert.InDelta(t, 0.5, snp.Precision, 1e-9)
	assert.InDelta(t, 0.5, snp.Recall, 1e-9)
	assert.InDelta(t, 0.5, snp.F1, 1e-9)
	assert.Equal(t, 2, snp.Support)
}

func TestClassifyLengthMismatch(t *testing.T) {
	_, err := Classify([][]string{{"O"}}, [][]string{{"O"}, {"O"}})
	require.Error(t, err)

	_, err = Classify([][]string{{"O", "O"}}, [][]string{{"O"}})
	require.Error(t, err)
}

func TestReportString(t *testing.T) {
	gold := [][]string{{"B-Gene", "O", "B-SNP"}}

	report, err := Classify(gold, gold)
	require.NoError(t, err)

	text := report.String()
	assert.True(t, strings.Contains(text, "Gene"))
	assert.True(t, strings.Contains(text, "SNP"))
	assert.True(t, strings.Contains(text, "micro avg"))
}
