package api

import (
	"errors"
	"log/slog"
	"net/http"

	"mutation-ner/internal/database"
	"mutation-ner/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// SweepService exposes read-only status endpoints over the local sweep
// records: which sweeps ran, how each trial did, and the per-trial span
// classification report.
type SweepService struct {
	db *gorm.DB
}

func NewSweepService(db *gorm.DB) *SweepService {
	return &SweepService{db: db}
}

func (s *SweepService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/sweeps", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListSweeps))
		r.Get("/{sweep_id}", RestHandler(s.GetSweep))
		r.Get("/{sweep_id}/runs", RestHandler(s.ListRuns))
	})
	r.Route("/runs", func(r chi.Router) {
		r.Get("/{run_id}", RestHandler(s.GetRun))
		r.Get("/{run_id}/report", RestHandler(s.GetRunReport))
	})
}

func (s *SweepService) ListSweeps(r *http.Request) (any, error) {
	var sweeps []database.Sweep
	if err := s.db.WithContext(r.Context()).Order("creation_time desc").Find(&sweeps).Error; err != nil {
		slog.Error("error listing sweeps", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving sweep records")
	}

	out := make([]api.Sweep, 0, len(sweeps))
	for _, sweep := range sweeps {
		out = append(out, convertSweep(sweep))
	}
	return out, nil
}

func (s *SweepService) GetSweep(r *http.Request) (any, error) {
	sweepId, err := URLParamUUID(r, "sweep_id")
	if err != nil {
		return nil, err
	}

	var sweep database.Sweep
	if err := s.db.WithContext(r.Context()).First(&sweep, "id = ?", sweepId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "sweep not found")
		}
		slog.Error("error getting sweep", "sweep_id", sweepId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving sweep record")
	}

	return convertSweep(sweep), nil
}

type listRunsParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

func (s *SweepService) ListRuns(r *http.Request) (any, error) {
	sweepId, err := URLParamUUID(r, "sweep_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[listRunsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 100
	}

	ctx := r.Context()

	var total int64
	if err := s.db.WithContext(ctx).Model(&database.TrialRun{}).Where("sweep_id = ?", sweepId).Count(&total).Error; err != nil {
		slog.Error("error counting trial runs", "sweep_id", sweepId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving trial run records")
	}

	var runs []database.TrialRun
	if err := s.db.WithContext(ctx).
		Where("sweep_id = ?", sweepId).
		Order("creation_time").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&runs).Error; err != nil {
		slog.Error("error listing trial runs", "sweep_id", sweepId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving trial run records")
	}

	out := api.ListRunsResponse{Runs: make([]api.TrialRun, 0, len(runs)), Total: total}
	for _, run := range runs {
		out.Runs = append(out.Runs, convertTrialRun(run))
	}
	return out, nil
}

func (s *SweepService) GetRun(r *http.Request) (any, error) {
	run, err := s.loadRun(r)
	if err != nil {
		return nil, err
	}
	return convertTrialRun(*run), nil
}

func (s *SweepService) GetRunReport(r *http.Request) (any, error) {
	run, err := s.loadRun(r)
	if err != nil {
		return nil, err
	}

	if run.Report == "" {
		return nil, CodedErrorf(http.StatusNotFound, "run has no classification report")
	}

	return api.RunReportResponse{RunId: run.Id, Report: run.Report}, nil
}

func (s *SweepService) loadRun(r *http.Request) (*database.TrialRun, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	var run database.TrialRun
	if err := s.db.WithContext(r.Context()).First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "trial run not found")
		}
		slog.Error("error getting trial run", "run_id", runId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving trial run record")
	}
	return &run, nil
}
