package api

import (
	"encoding/json"
	"log/slog"

	"mutation-ner/internal/database"
	"mutation-ner/pkg/api"
)

func convertSweep(sweep database.Sweep) api.Sweep {
	return api.Sweep{
		Id:           sweep.Id,
		SweepName:    sweep.Name,
		RemoteId:     sweep.RemoteId,
		Method:       sweep.Method,
		Metric:       sweep.Metric,
		Trials:       sweep.Trials,
		CreationTime: sweep.CreationTime,
	}
}

func convertTrialRun(run database.TrialRun) api.TrialRun {
	out := api.TrialRun{
		Id:           run.Id,
		SweepId:      run.SweepId,
		RunName:      run.RunName,
		Status:       run.Status,
		Error:        run.Error,
		CreationTime: run.CreationTime,
	}

	if run.CompletionTime.Valid {
		t := run.CompletionTime.Time
		out.CompletionTime = &t
	}

	if len(run.Params) > 0 {
		if err := json.Unmarshal(run.Params, &out.Params); err != nil {
			slog.Error("invalid params JSON on trial run", "run_id", run.Id, "error", err)
		}
	}

	metrics, err := database.GetTrialMetrics(&run)
	if err != nil {
		slog.Error("invalid metrics JSON on trial run", "run_id", run.Id, "error", err)
	}
	out.Metrics = metrics

	return out
}
