package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mutation-ner/internal/database"
	"mutation-ner/internal/encoding"
	"mutation-ner/internal/labels"
	"mutation-ner/internal/messaging"
	"mutation-ner/internal/metrics"
	"mutation-ner/internal/storage"
	"mutation-ner/internal/tracking"
	"mutation-ner/internal/trainer"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Predictor decodes a trained model's output back to word-level tags.
type Predictor interface {
	PredictTags(dataset *encoding.Dataset, batchSize int, vocab *labels.Vocabulary) (predSeqs, goldSeqs [][]string, err error)

	Release()
}

// PredictorLoader opens a predictor over a downloaded model directory.
type PredictorLoader func(modelDir string, numClasses int) (Predictor, error)

func defaultPredictorLoader(modelDir string, numClasses int) (Predictor, error) {
	return trainer.LoadPredictor(modelDir, numClasses)
}

// TrialResult reports one finished trial back to the agent. Err is set for
// failed trials; the failure is already reported and finalized, the sweep
// moves on to the next trial.
type TrialResult struct {
	RunId   uuid.UUID
	Metrics map[string]float64
	Err     error
}

// Driver executes a single sweep trial end to end: train, evaluate, decode
// the test split, score spans, and report everything to the tracking service
// and the local run records.
type Driver struct {
	trainer       trainer.Trainer
	tracker       *tracking.Client
	db            *gorm.DB
	objectStore   storage.ObjectStore
	reportBucket  string
	provider      SplitProvider
	loadPredictor PredictorLoader
}

type DriverOption func(*Driver)

// WithPredictorLoader overrides how trained models are opened for prediction.
func WithPredictorLoader(loader PredictorLoader) DriverOption {
	return func(d *Driver) {
		d.loadPredictor = loader
	}
}

func NewDriver(tr trainer.Trainer, tracker *tracking.Client, db *gorm.DB, objectStore storage.ObjectStore, reportBucket string, provider SplitProvider, opts ...DriverOption) *Driver {
	d := &Driver{
		trainer:       tr,
		tracker:       tracker,
		db:            db,
		objectStore:   objectStore,
		reportBucket:  reportBucket,
		provider:      provider,
		loadPredictor: defaultPredictorLoader,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunTrial executes one trial. Any failure is contained here: it is sent to
// the tracking service as an alert, recorded on the run, and the run record is
// finalized either way. The returned result carries the error for logging, not
// for aborting the sweep.
func (d *Driver) RunTrial(ctx context.Context, task messaging.TrialTaskPayload) TrialResult {
	run := d.tracker.Run(task.RemoteId, "")

	trialMetrics, err := d.runTrial(ctx, run, task)
	if err != nil {
		slog.Error("trial failed", "run_id", task.RunId, "error", err)

		if alertErr := run.Alert(ctx, "trial failed", err.Error()); alertErr != nil {
			slog.Error("unable to send trial failure alert", "run_id", task.RunId, "error", alertErr)
		}
		database.SaveTrialError(ctx, d.db, task.RunId, err.Error())
		if dbErr := database.UpdateTrialRunStatus(ctx, d.db, task.RunId, database.RunFailed); dbErr != nil {
			slog.Error("unable to mark trial run failed", "run_id", task.RunId, "error", dbErr)
		}
		d.finish(ctx, run, "failed", task.RunId)

		return TrialResult{RunId: task.RunId, Err: err}
	}

	if dbErr := database.UpdateTrialRunStatus(ctx, d.db, task.RunId, database.RunCompleted); dbErr != nil {
		slog.Error("unable to mark trial run completed", "run_id", task.RunId, "error", dbErr)
	}
	d.finish(ctx, run, "finished", task.RunId)

	return TrialResult{RunId: task.RunId, Metrics: trialMetrics}
}

// finish always runs, success or failure, so the tracking service never sees
// a dangling run.
func (d *Driver) finish(ctx context.Context, run *tracking.Run, state string, runId uuid.UUID) {
	if err := run.Finish(ctx, state); err != nil {
		slog.Error("unable to finalize tracking run", "run_id", runId, "state", state, "error", err)
	}
}

func (d *Driver) runTrial(ctx context.Context, run *tracking.Run, task messaging.TrialTaskPayload) (map[string]float64, error) {
	if err := database.UpdateTrialRunStatus(ctx, d.db, task.RunId, database.RunTraining); err != nil {
		return nil, err
	}

	vocab := d.provider.Vocabulary()
	splits, err := d.provider.Splits(task.Params.ModelCheckpoint)
	if err != nil {
		return nil, err
	}

	args := trainer.NewTrainingArguments(task.Params.LearningRate, task.Params.ModelCheckpoint, vocab.Size())
	result, err := d.trainer.Train(ctx, args, splits.Train, splits.Eval)
	if err != nil {
		return nil, err
	}

	for epoch, loss := range result.EpochLosses {
		if err := run.LogMetrics(ctx, map[string]float64{"epoch": float64(epoch), "train_loss": loss}); err != nil {
			return nil, err
		}
	}
	if err := run.LogMetrics(ctx, map[string]float64{"eval_loss": result.EvalLoss}); err != nil {
		return nil, err
	}

	predictor, err := d.loadPredictor(result.ModelDir, vocab.Size())
	if err != nil {
		return nil, fmt.Errorf("loading trained model: %w", err)
	}
	defer predictor.Release()

	predSeqs, goldSeqs, err := predictor.PredictTags(splits.Test, trainer.DefaultBatchSize, vocab)
	if err != nil {
		return nil, fmt.Errorf("decoding test split: %w", err)
	}

	report, err := metrics.Classify(goldSeqs, predSeqs)
	if err != nil {
		return nil, fmt.Errorf("scoring test predictions: %w", err)
	}

	trialMetrics := map[string]float64{
		"eval_loss":      result.EvalLoss,
		"test_precision": report.MicroAvg.Precision,
		"test_recall":    report.MicroAvg.Recall,
		"test_f1":        report.MicroAvg.F1,
	}

	reportText := report.String()
	if err := run.LogReport(ctx, "classification_report", reportText); err != nil {
		return nil, err
	}
	if err := run.LogMetrics(ctx, trialMetrics); err != nil {
		return nil, err
	}

	reportKey := fmt.Sprintf("%s/classification_report.txt", task.RunId)
	if err := d.objectStore.PutObject(ctx, d.reportBucket, reportKey, strings.NewReader(reportText)); err != nil {
		return nil, fmt.Errorf("storing classification report: %w", err)
	}

	if err := database.SaveTrialResults(ctx, d.db, task.RunId, trialMetrics, reportText); err != nil {
		return nil, err
	}

	slog.Info("trial completed", "run_id", task.RunId,
		"checkpoint", task.Params.ModelCheckpoint, "learning_rate", task.Params.LearningRate,
		"eval_loss", result.EvalLoss, "test_f1", report.MicroAvg.F1)

	return trialMetrics, nil
}
