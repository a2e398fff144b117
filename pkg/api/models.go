package api

import (
	"time"

	"github.com/google/uuid"
)

// TrialParams are the hyperparameters sampled by the tracking service for one
// sweep trial. Batch size, epoch count, and weight decay are fixed per sweep
// and live in the trainer's TrainingArguments.
type TrialParams struct {
	LearningRate    float64
	ModelCheckpoint string
}

type Sweep struct {
	Id        uuid.UUID
	SweepName string
	RemoteId  string
	Method    string
	Metric    string
	Trials    int

	CreationTime time.Time
}

type TrialRun struct {
	Id      uuid.UUID
	SweepId uuid.UUID
	RunName string
	Status  string

	Params  TrialParams
	Metrics map[string]float64 `json:"Metrics,omitempty"`
	Error   string             `json:"Error,omitempty"`

	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type ListRunsResponse struct {
	Runs  []TrialRun
	Total int64
}

type RunReportResponse struct {
	RunId  uuid.UUID
	Report string
}
