package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateSweep(ctx context.Context, db *gorm.DB, sweep *Sweep) error {
	if err := db.WithContext(ctx).Create(sweep).Error; err != nil {
		slog.Error("error creating sweep record", "sweep_id", sweep.Id, "error", err)
		return fmt.Errorf("could not create sweep record: %w", err)
	}
	return nil
}

func CreateTrialRun(ctx context.Context, db *gorm.DB, sweepId uuid.UUID, remoteId, runName string, params any) (*TrialRun, error) {
	bParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("could not marshal trial params: %w", err)
	}

	run := TrialRun{
		Id:           uuid.New(),
		SweepId:      sweepId,
		RemoteId:     remoteId,
		RunName:      runName,
		Status:       RunQueued,
		Params:       bParams,
		CreationTime: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating trial run record", "sweep_id", sweepId, "error", err)
		return nil, fmt.Errorf("could not create trial run record: %w", err)
	}
	return &run, nil
}

func UpdateTrialRunStatus(ctx context.Context, db *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == RunCompleted || status == RunFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := db.WithContext(ctx).Model(&TrialRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating trial run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveTrialResults(ctx context.Context, db *gorm.DB, runId uuid.UUID, metrics map[string]float64, report string) error {
	bMetrics, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("could not marshal trial metrics: %w", err)
	}

	updates := map[string]any{"metrics": bMetrics, "report": report}
	if err := db.WithContext(ctx).Model(&TrialRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error saving trial results", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func SaveTrialError(ctx context.Context, db *gorm.DB, runId uuid.UUID, errorMessage string) {
	if err := db.WithContext(ctx).Model(&TrialRun{Id: runId}).Update("error", errorMessage).Error; err != nil {
		slog.Error("error saving trial error", "run_id", runId, "error", err)
	}
}

func GetTrialMetrics(run *TrialRun) (map[string]float64, error) {
	if len(run.Metrics) == 0 {
		return nil, nil
	}

	var metrics map[string]float64
	if err := json.Unmarshal(run.Metrics, &metrics); err != nil {
		return nil, fmt.Errorf("invalid metrics JSON for run %s: %w", run.Id, err)
	}
	return metrics, nil
}
