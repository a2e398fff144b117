package trainer

import (
	"context"

	"mutation-ner/internal/encoding"
)

// Fixed training settings shared by every trial of a sweep. Only the learning
// rate and base checkpoint vary between trials.
const (
	DefaultBatchSize   = 16
	DefaultEpochs      = 5
	DefaultWeightDecay = 0.01
)

// TrainingArguments fully describes one fine-tuning job.
type TrainingArguments struct {
	LearningRate    float64 `json:"learning_rate"`
	ModelCheckpoint string  `json:"model_checkpoint"`
	BatchSize       int     `json:"batch_size"`
	Epochs          int     `json:"epochs"`
	WeightDecay     float64 `json:"weight_decay"`
	NumLabels       int     `json:"num_labels"`
}

func NewTrainingArguments(learningRate float64, checkpoint string, numLabels int) TrainingArguments {
	return TrainingArguments{
		LearningRate:    learningRate,
		ModelCheckpoint: checkpoint,
		BatchSize:       DefaultBatchSize,
		Epochs:          DefaultEpochs,
		WeightDecay:     DefaultWeightDecay,
		NumLabels:       numLabels,
	}
}

// TrainResult is the outcome of a completed fine-tuning job. ModelDir is a
// local directory holding the exported ONNX model for the trained checkpoint.
type TrainResult struct {
	EvalLoss    float64
	EpochLosses []float64
	ModelDir    string
}

// Trainer runs one fine-tuning job over pre-encoded train and eval splits.
type Trainer interface {
	Train(ctx context.Context, args TrainingArguments, train, eval *encoding.Dataset) (*TrainResult, error)
}
