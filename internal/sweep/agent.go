package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mutation-ner/internal/database"
	"mutation-ner/internal/messaging"
	"mutation-ner/internal/tracking"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agent runs a whole sweep: it registers the sweep with the tracking service,
// asks it for one hyperparameter configuration at a time, and dispatches each
// trial through the task queue to the driver. Trials are strictly serial; the
// tracking service's Bayesian sampler sees every finished trial before it
// proposes the next one.
type Agent struct {
	tracker   *tracking.Client
	publisher messaging.Publisher
	receiver  messaging.Reciever
	driver    *Driver
	db        *gorm.DB
	cfg       *Config
}

func NewAgent(tracker *tracking.Client, publisher messaging.Publisher, receiver messaging.Reciever, driver *Driver, db *gorm.DB, cfg *Config) *Agent {
	return &Agent{
		tracker:   tracker,
		publisher: publisher,
		receiver:  receiver,
		driver:    driver,
		db:        db,
		cfg:       cfg,
	}
}

// Run executes the sweep to completion. Individual trial failures are
// contained by the driver; only sweep-level failures (registration, sampling,
// cancellation) abort the loop.
func (a *Agent) Run(ctx context.Context) error {
	sweepRecord, used, err := a.openSweep(ctx)
	if err != nil {
		return err
	}
	remoteId := sweepRecord.RemoteId

	for trial := used; trial < sweepRecord.Trials; trial++ {
		params, err := a.tracker.NextTrial(ctx, remoteId)
		if errors.Is(err, tracking.ErrNoMoreTrials) {
			slog.Info("tracking service ended the sweep early", "completed_trials", trial)
			break
		}
		if err != nil {
			return err
		}

		run, err := a.tracker.StartRun(ctx, remoteId)
		if err != nil {
			return err
		}

		dbRun, err := database.CreateTrialRun(ctx, a.db, sweepRecord.Id, run.Id, run.Name, params)
		if err != nil {
			return err
		}

		payload := messaging.TrialTaskPayload{
			SweepId:  sweepRecord.Id,
			RunId:    dbRun.Id,
			RemoteId: run.Id,
			Params:   params,
		}
		if err := a.publisher.PublishTrialTask(ctx, payload); err != nil {
			return err
		}

		if err := a.processNext(ctx); err != nil {
			return err
		}
	}

	slog.Info("sweep complete", "sweep_id", sweepRecord.Id)

	return nil
}

// openSweep resumes the most recent sweep with the same name if it still has
// trial budget left, otherwise registers a new sweep with the tracking
// service. Runs left queued or training by an interrupted agent are marked
// failed; they count toward the budget like any other failed trial.
func (a *Agent) openSweep(ctx context.Context) (*database.Sweep, int, error) {
	var prev database.Sweep
	err := a.db.WithContext(ctx).Where("name = ?", a.cfg.Sweep.Name).Order("creation_time desc").First(&prev).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, fmt.Errorf("error looking up previous sweep: %w", err)
	}

	if err == nil {
		var runs []database.TrialRun
		if err := a.db.WithContext(ctx).Where("sweep_id = ?", prev.Id).Find(&runs).Error; err != nil {
			return nil, 0, fmt.Errorf("error loading trial runs for sweep %s: %w", prev.Id, err)
		}

		used := 0
		for _, run := range runs {
			switch run.Status {
			case database.RunCompleted, database.RunFailed:
				used++
			default:
				slog.Warn("marking interrupted trial run as failed", "run_id", run.Id, "status", run.Status)
				database.SaveTrialError(ctx, a.db, run.Id, "interrupted by agent restart")
				if err := database.UpdateTrialRunStatus(ctx, a.db, run.Id, database.RunFailed); err != nil {
					return nil, 0, fmt.Errorf("error failing interrupted run %s: %w", run.Id, err)
				}
				used++
			}
		}

		if used < prev.Trials {
			slog.Info("resuming interrupted sweep", "sweep_id", prev.Id, "remote_id", prev.RemoteId, "used_trials", used, "trials", prev.Trials)
			return &prev, used, nil
		}
	}

	remoteId, err := a.tracker.CreateSweep(ctx, a.cfg.Sweep)
	if err != nil {
		return nil, 0, err
	}

	sweepRecord := &database.Sweep{
		Id:           uuid.New(),
		Name:         a.cfg.Sweep.Name,
		RemoteId:     remoteId,
		Method:       a.cfg.Sweep.Method,
		Metric:       a.cfg.Sweep.Metric.Name,
		Trials:       a.cfg.Sweep.Trials,
		CorpusSource: a.cfg.Corpus.TrainSource,
		CreationTime: time.Now().UTC(),
	}
	if err := database.CreateSweep(ctx, a.db, sweepRecord); err != nil {
		return nil, 0, err
	}

	slog.Info("sweep registered", "sweep_id", sweepRecord.Id, "remote_id", remoteId, "trials", a.cfg.Sweep.Trials)

	return sweepRecord, 0, nil
}

func (a *Agent) processNext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case task, ok := <-a.receiver.Tasks():
		if !ok {
			return fmt.Errorf("trial task queue closed")
		}

		var payload messaging.TrialTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("discarding malformed trial task", "error", err)
			if rejectErr := task.Reject(); rejectErr != nil {
				slog.Error("unable to reject malformed trial task", "error", rejectErr)
			}
			return nil
		}

		result := a.driver.RunTrial(ctx, payload)
		if result.Err != nil {
			// Failure already reported and finalized; the sweep continues.
			slog.Warn("trial finished with error", "run_id", result.RunId, "error", result.Err)
		}

		if err := task.Ack(); err != nil {
			slog.Error("unable to ack trial task", "run_id", payload.RunId, "error", err)
		}
	}
	return nil
}
