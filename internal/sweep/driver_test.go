package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mutation-ner/internal/database"
	"mutation-ner/internal/encoding"
	"mutation-ner/internal/labels"
	"mutation-ner/internal/messaging"
	"mutation-ner/internal/storage"
	"mutation-ner/internal/tracking"
	"mutation-ner/internal/trainer"
	"mutation-ner/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return db
}

func testVocabulary() *labels.Vocabulary {
	return labels.BuildVocabulary([][]string{{"O", "B-Gene", "I-Gene", "B-SNP", "I-SNP", "B-RS"}})
}

func tinyDataset() *encoding.Dataset {
	return &encoding.Dataset{Sentences: []encoding.EncodedSentence{
		{
			InputIDs:      []int64{101, 2003, 102},
			AttentionMask: []int64{1, 1, 1},
			Labels:        []int64{encoding.IgnoreIndex, 1, encoding.IgnoreIndex},
		},
	}}
}

type fakeProvider struct {
	vocab *labels.Vocabulary
}

func (p *fakeProvider) Vocabulary() *labels.Vocabulary {
	return p.vocab
}

func (p *fakeProvider) Splits(checkpoint string) (*Splits, error) {
	return &Splits{Train: tinyDataset(), Eval: tinyDataset(), Test: tinyDataset()}, nil
}

type fakeTrainer struct {
	err    error
	gotLR  float64
	gotCkp string
}

func (f *fakeTrainer) Train(ctx context.Context, args trainer.TrainingArguments, train, eval *encoding.Dataset) (*trainer.TrainResult, error) {
	f.gotLR = args.LearningRate
	f.gotCkp = args.ModelCheckpoint
	if f.err != nil {
		return nil, f.err
	}
	return &trainer.TrainResult{
		EvalLoss:    0.042,
		EpochLosses: []float64{0.9, 0.5, 0.3},
		ModelDir:    "/tmp/fake-model",
	}, nil
}

type fakePredictor struct {
	preds [][]string
	gold  [][]string
}

func (f *fakePredictor) PredictTags(dataset *encoding.Dataset, batchSize int, vocab *labels.Vocabulary) ([][]string, [][]string, error) {
	return f.preds, f.gold, nil
}

func (f *fakePredictor) Release() {}

// trackerServer is a fake tracking service that records run-scoped calls.
type trackerServer struct {
	mu       sync.Mutex
	alerts   []string
	reports  []string
	finishes []string
	metrics  []map[string]float64
}

func (s *trackerServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		switch {
		case r.URL.Path == "/api/v1/runs/run-7/alerts":
			s.alerts = append(s.alerts, body["text"].(string))
		case r.URL.Path == "/api/v1/runs/run-7/files":
			s.reports = append(s.reports, body["content"].(string))
		case r.URL.Path == "/api/v1/runs/run-7/finish":
			s.finishes = append(s.finishes, body["state"].(string))
		case r.URL.Path == "/api/v1/runs/run-7/metrics":
			values := map[string]float64{}
			for k, v := range body["metrics"].(map[string]any) {
				values[k] = v.(float64)
			}
			s.metrics = append(s.metrics, values)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func setupDriverTest(t *testing.T, tr trainer.Trainer, predictor Predictor) (*Driver, *trackerServer, *gorm.DB, *storage.LocalObjectStore, messaging.TrialTaskPayload) {
	t.Helper()

	state := &trackerServer{}
	server := httptest.NewServer(state.handler())
	t.Cleanup(server.Close)

	db := createDB(t)
	objectStore, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, objectStore.CreateBucket(context.Background(), "reports"))

	sweepRecord := &database.Sweep{Id: uuid.New(), Name: "test", RemoteId: "sweep-42", Method: "bayes", CreationTime: time.Now().UTC()}
	require.NoError(t, database.CreateSweep(context.Background(), db, sweepRecord))

	params := api.TrialParams{LearningRate: 3e-5, ModelCheckpoint: "bert-base-cased"}
	dbRun, err := database.CreateTrialRun(context.Background(), db, sweepRecord.Id, "run-7", "glowing-sweep-7", params)
	require.NoError(t, err)

	tracker := tracking.NewClient(server.URL, "key")
	provider := &fakeProvider{vocab: testVocabulary()}

	driver := NewDriver(tr, tracker, db, objectStore, "reports", provider,
		WithPredictorLoader(func(modelDir string, numClasses int) (Predictor, error) {
			return predictor, nil
		}))

	payload := messaging.TrialTaskPayload{
		SweepId:  sweepRecord.Id,
		RunId:    dbRun.Id,
		RemoteId: "run-7",
		Params:   params,
	}
	return driver, state, db, objectStore, payload
}

func TestRunTrialSuccess(t *testing.T) {
	gold := [][]string{{"O", "B-Gene", "I-Gene", "O"}}
	tr := &fakeTrainer{}
	driver, state, db, _, payload := setupDriverTest(t, tr, &fakePredictor{preds: gold, gold: gold})

	result := driver.RunTrial(context.Background(), payload)
	require.NoError(t, result.Err)

	assert.Equal(t, 3e-5, tr.gotLR)
	assert.Equal(t, "bert-base-cased", tr.gotCkp)

	assert.Equal(t, 0.042, result.Metrics["eval_loss"])
	assert.Equal(t, 1.0, result.Metrics["test_f1"])

	assert.Empty(t, state.alerts)
	assert.Equal(t, []string{"finished"}, state.finishes)
	require.Len(t, state.reports, 1)
	assert.Contains(t, state.reports[0], "Gene")

	var stored database.TrialRun
	require.NoError(t, db.First(&stored, "id = ?", payload.RunId).Error)
	assert.Equal(t, database.RunCompleted, stored.Status)
	assert.True(t, stored.CompletionTime.Valid)
	assert.Contains(t, stored.Report, "micro avg")

	metrics, err := database.GetTrialMetrics(&stored)
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics["test_f1"])
}

func TestRunTrialStoresReportArtifact(t *testing.T) {
	gold := [][]string{{"B-SNP", "O"}}
	driver, _, _, objectStore, payload := setupDriverTest(t, &fakeTrainer{}, &fakePredictor{preds: gold, gold: gold})

	result := driver.RunTrial(context.Background(), payload)
	require.NoError(t, result.Err)

	dest := t.TempDir() + "/reports"
	require.NoError(t, objectStore.DownloadDir(context.Background(), "reports", payload.RunId.String(), dest, true))
}

func TestRunTrialTrainingFailure(t *testing.T) {
	tr := &fakeTrainer{err: errors.New("CUDA out of memory")}
	driver, state, db, _, payload := setupDriverTest(t, tr, &fakePredictor{})

	result := driver.RunTrial(context.Background(), payload)
	require.Error(t, result.Err)
	assert.Equal(t, payload.RunId, result.RunId)

	require.Len(t, state.alerts, 1)
	assert.Contains(t, state.alerts[0], "CUDA out of memory")
	assert.Equal(t, []string{"failed"}, state.finishes)

	var stored database.TrialRun
	require.NoError(t, db.First(&stored, "id = ?", payload.RunId).Error)
	assert.Equal(t, database.RunFailed, stored.Status)
	assert.Contains(t, stored.Error, "CUDA out of memory")
	assert.True(t, stored.CompletionTime.Valid)
}

func TestRunTrialBoundaryErrorsAreScored(t *testing.T) {
	gold := [][]string{{"B-Gene", "I-Gene", "O", "B-SNP"}}
	preds := [][]string{{"B-Gene", "O", "O", "B-SNP"}}
	driver, _, _, _, payload := setupDriverTest(t, &fakeTrainer{}, &fakePredictor{preds: preds, gold: gold})

	result := driver.RunTrial(context.Background(), payload)
	require.NoError(t, result.Err)

	assert.InDelta(t, 0.5, result.Metrics["test_precision"], 1e-9)
	assert.InDelta(t, 0.5, result.Metrics["test_recall"], 1e-9)
}
