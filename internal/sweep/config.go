package sweep

import (
	"fmt"
	"os"

	"mutation-ner/internal/tracking"

	"gopkg.in/yaml.v2"
)

// CorpusConfig points at the annotated IOB sources for the sweep. The eval
// split is carved off the tail of the training corpus; the test corpus is
// independent and never contributes to the label vocabulary.
type CorpusConfig struct {
	TrainSource  string  `yaml:"train_source"`
	TestSource   string  `yaml:"test_source"`
	EvalFraction float64 `yaml:"eval_fraction"`
}

type Config struct {
	Corpus    CorpusConfig         `yaml:"corpus"`
	Sweep     tracking.SweepConfig `yaml:"sweep"`
	MaxSeqLen int                  `yaml:"max_seq_len"`
}

var defaultCheckpoints = []string{
	"bert-base-cased",
	"dmis-lab/biobert-v1.1",
	"allenai/scibert_scivocab_cased",
}

// LoadConfig reads the sweep definition from a yaml file and fills in
// defaults for anything the file leaves out.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sweep config %s: %w", path, err)
	}

	if cfg.Corpus.TrainSource == "" || cfg.Corpus.TestSource == "" {
		return nil, fmt.Errorf("sweep config %s must set corpus.train_source and corpus.test_source", path)
	}
	if cfg.Corpus.EvalFraction <= 0 || cfg.Corpus.EvalFraction >= 1 {
		cfg.Corpus.EvalFraction = 0.1
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}

	if cfg.Sweep.Name == "" {
		cfg.Sweep.Name = "mutation-ner"
	}
	if cfg.Sweep.Method == "" {
		cfg.Sweep.Method = "bayes"
	}
	if cfg.Sweep.Trials <= 0 {
		cfg.Sweep.Trials = 10
	}
	if cfg.Sweep.Metric.Name == "" {
		cfg.Sweep.Metric = tracking.Metric{Name: "eval_loss", Goal: "minimize"}
	}
	if cfg.Sweep.Parameters.LearningRate.Distribution == "" {
		cfg.Sweep.Parameters.LearningRate.Distribution = "uniform"
		cfg.Sweep.Parameters.LearningRate.Min = 1e-5
		cfg.Sweep.Parameters.LearningRate.Max = 5e-5
	}
	if len(cfg.Sweep.Parameters.ModelCheckpoint.Values) == 0 {
		cfg.Sweep.Parameters.ModelCheckpoint.Values = defaultCheckpoints
	}

	return &cfg, nil
}
