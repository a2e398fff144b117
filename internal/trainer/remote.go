package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"mutation-ner/internal/encoding"
	"mutation-ner/internal/storage"

	"github.com/go-resty/resty/v2"
)

var ErrTrainingFailed = errors.New("training job failed")

const (
	submitTimeout       = 2 * time.Minute
	defaultPollInterval = 10 * time.Second
)

// RemoteTrainer submits fine-tuning jobs to an external training service and
// polls until they complete. The service writes the exported ONNX model to the
// shared object store; the trainer downloads it to a local scratch directory.
type RemoteTrainer struct {
	client       *resty.Client
	objectStore  storage.ObjectStore
	modelBucket  string
	scratchDir   string
	pollInterval time.Duration
}

var _ Trainer = (*RemoteTrainer)(nil)

type RemoteTrainerOption func(*RemoteTrainer)

func WithPollInterval(interval time.Duration) RemoteTrainerOption {
	return func(t *RemoteTrainer) {
		t.pollInterval = interval
	}
}

func NewRemoteTrainer(baseURL string, objectStore storage.ObjectStore, modelBucket, scratchDir string, opts ...RemoteTrainerOption) *RemoteTrainer {
	t := &RemoteTrainer{
		client:       resty.New().SetBaseURL(baseURL).SetTimeout(submitTimeout),
		objectStore:  objectStore,
		modelBucket:  modelBucket,
		scratchDir:   scratchDir,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type trainJobRequest struct {
	Args  TrainingArguments          `json:"args"`
	Train []encoding.EncodedSentence `json:"train"`
	Eval  []encoding.EncodedSentence `json:"eval"`
}

type trainJobResponse struct {
	JobId string `json:"job_id"`
}

type jobStatusResponse struct {
	Status      string    `json:"status"`
	EvalLoss    float64   `json:"eval_loss"`
	EpochLosses []float64 `json:"epoch_losses"`
	ModelKey    string    `json:"model_key"`
	Error       string    `json:"error"`
}

const (
	jobStatusQueued    = "queued"
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
)

func (t *RemoteTrainer) Train(ctx context.Context, args TrainingArguments, train, eval *encoding.Dataset) (*TrainResult, error) {
	jobID, err := t.submit(ctx, args, train, eval)
	if err != nil {
		return nil, err
	}
	slog.Info("submitted training job", "job_id", jobID, "checkpoint", args.ModelCheckpoint, "learning_rate", args.LearningRate)

	status, err := t.await(ctx, jobID)
	if err != nil {
		return nil, err
	}

	modelDir, err := os.MkdirTemp(t.scratchDir, "model-*")
	if err != nil {
		return nil, fmt.Errorf("creating model directory: %w", err)
	}
	if err := t.objectStore.DownloadDir(ctx, t.modelBucket, status.ModelKey, modelDir, true); err != nil {
		return nil, fmt.Errorf("downloading trained model %s: %w", status.ModelKey, err)
	}

	return &TrainResult{
		EvalLoss:    status.EvalLoss,
		EpochLosses: status.EpochLosses,
		ModelDir:    modelDir,
	}, nil
}

func (t *RemoteTrainer) submit(ctx context.Context, args TrainingArguments, train, eval *encoding.Dataset) (string, error) {
	var created trainJobResponse
	res, err := t.client.R().
		SetContext(ctx).
		SetBody(trainJobRequest{Args: args, Train: train.Sentences, Eval: eval.Sentences}).
		SetResult(&created).
		Post("/api/v1/jobs")
	if err != nil {
		return "", fmt.Errorf("submitting training job: %w", err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("submitting training job: status %d: %s", res.StatusCode(), res.String())
	}
	if created.JobId == "" {
		return "", fmt.Errorf("submitting training job: empty job id in response")
	}
	return created.JobId, nil
}

func (t *RemoteTrainer) await(ctx context.Context, jobID string) (*jobStatusResponse, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		var status jobStatusResponse
		res, err := t.client.R().
			SetContext(ctx).
			SetResult(&status).
			Get(fmt.Sprintf("/api/v1/jobs/%s", jobID))
		if err != nil {
			return nil, fmt.Errorf("polling job %s: %w", jobID, err)
		}
		if !res.IsSuccess() {
			return nil, fmt.Errorf("polling job %s: status %d: %s", jobID, res.StatusCode(), res.String())
		}

		switch status.Status {
		case jobStatusCompleted:
			return &status, nil
		case jobStatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrTrainingFailed, status.Error)
		case jobStatusQueued, jobStatusRunning:
		default:
			return nil, fmt.Errorf("job %s reported unknown status %q", jobID, status.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
