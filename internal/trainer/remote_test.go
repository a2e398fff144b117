package trainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mutation-ner/internal/encoding"
	"mutation-ner/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset() *encoding.Dataset {
	return &encoding.Dataset{Sentences: []encoding.EncodedSentence{
		{
			InputIDs:      []int64{101, 7592, 102},
			AttentionMask: []int64{1, 1, 1},
			Labels:        []int64{encoding.IgnoreIndex, 2, encoding.IgnoreIndex},
		},
	}}
}

func TestRemoteTrainerTrain(t *testing.T) {
	storeDir := t.TempDir()
	objectStore, err := storage.NewLocalObjectStore(storeDir)
	require.NoError(t, err)

	modelSrc := filepath.Join(storeDir, "models", "jobs/job-1")
	require.NoError(t, os.MkdirAll(modelSrc, os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(modelSrc, "model.onnx"), []byte("onnx-bytes"), os.ModePerm))

	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/jobs":
			var req trainJobRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 3e-5, req.Args.LearningRate)
			assert.Equal(t, DefaultBatchSize, req.Args.BatchSize)
			assert.Len(t, req.Train, 1)
			assert.Len(t, req.Eval, 1)

			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})

		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/jobs/job-1":
			polls++
			if polls < 3 {
				json.NewEncoder(w).Encode(map[string]string{"status": "running"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"status":       "completed",
				"eval_loss":    0.042,
				"epoch_losses": []float64{0.9, 0.5, 0.3, 0.2, 0.1},
				"model_key":    "jobs/job-1",
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	trainer := NewRemoteTrainer(server.URL, objectStore, "models", t.TempDir(), WithPollInterval(time.Millisecond))

	args := NewTrainingArguments(3e-5, "bert-base-cased", 6)
	result, err := trainer.Train(context.Background(), args, testDataset(), testDataset())
	require.NoError(t, err)

	assert.Equal(t, 0.042, result.EvalLoss)
	assert.Len(t, result.EpochLosses, 5)

	data, err := os.ReadFile(filepath.Join(result.ModelDir, "model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))
}

func TestRemoteTrainerJobFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-2"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": "CUDA out of memory"})
	}))
	defer server.Close()

	objectStore, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	trainer := NewRemoteTrainer(server.URL, objectStore, "models", t.TempDir(), WithPollInterval(time.Millisecond))

	args := NewTrainingArguments(2e-5, "dmis-lab/biobert-v1.1", 6)
	_, err = trainer.Train(context.Background(), args, testDataset(), testDataset())
	require.ErrorIs(t, err, ErrTrainingFailed)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestRemoteTrainerContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-3"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	}))
	defer server.Close()

	objectStore, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	trainer := NewRemoteTrainer(server.URL, objectStore, "models", t.TempDir(), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	args := NewTrainingArguments(1e-5, "bert-base-cased", 6)
	_, err = trainer.Train(ctx, args, testDataset(), testDataset())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
