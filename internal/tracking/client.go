package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mutation-ner/pkg/api"

	"github.com/go-resty/resty/v2"
)

var (
	ErrLoginFailed  = errors.New("tracking service login failed")
	ErrSweepCreate  = errors.New("unable to create sweep")
	ErrNoMoreTrials = errors.New("sweep has no more trials")
)

const requestTimeout = 30 * time.Second

// SweepConfig is the sweep definition registered with the tracking service.
// The service owns the search strategy; this side only declares the space.
type SweepConfig struct {
	Name       string `yaml:"name" json:"name"`
	Method     string `yaml:"method" json:"method"`
	Trials     int    `yaml:"trials" json:"trials"`
	Metric     Metric `yaml:"metric" json:"metric"`
	Parameters struct {
		LearningRate struct {
			Distribution string  `yaml:"distribution" json:"distribution"`
			Min          float64 `yaml:"min" json:"min"`
			Max          float64 `yaml:"max" json:"max"`
		} `yaml:"learning_rate" json:"learning_rate"`
		ModelCheckpoint struct {
			Values []string `yaml:"values" json:"values"`
		} `yaml:"model_checkpoint" json:"model_checkpoint"`
	} `yaml:"parameters" json:"parameters"`
}

type Metric struct {
	Name string `yaml:"name" json:"name"`
	Goal string `yaml:"goal" json:"goal"`
}

// Client talks to the external experiment-tracking service. One client is
// shared by the whole sweep; per-trial state lives in Run.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetTimeout(requestTimeout),
	}
}

// Login validates the credential before any trial runs.
func (c *Client) Login(ctx context.Context) error {
	res, err := c.client.R().
		SetContext(ctx).
		Post("/api/v1/login")
	if err != nil {
		slog.Error("unable to reach tracking service", "error", err)
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if !res.IsSuccess() {
		slog.Error("tracking service rejected credentials", "status_code", res.StatusCode(), "body", res.String())
		return fmt.Errorf("%w: status %d", ErrLoginFailed, res.StatusCode())
	}
	return nil
}

type createSweepResponse struct {
	SweepId string `json:"sweep_id"`
}

// CreateSweep registers the sweep definition and returns the service-side
// sweep identifier.
func (c *Client) CreateSweep(ctx context.Context, cfg SweepConfig) (string, error) {
	var created createSweepResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(cfg).
		SetResult(&created).
		Post("/api/v1/sweeps")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSweepCreate, err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("%w: status %d: %s", ErrSweepCreate, res.StatusCode(), res.String())
	}
	if created.SweepId == "" {
		return "", fmt.Errorf("%w: empty sweep id in response", ErrSweepCreate)
	}
	return created.SweepId, nil
}

type nextTrialResponse struct {
	Done            bool    `json:"done"`
	LearningRate    float64 `json:"learning_rate"`
	ModelCheckpoint string  `json:"model_checkpoint"`
}

// NextTrial asks the service's search strategy for the next hyperparameter
// configuration. ErrNoMoreTrials signals the budget is exhausted.
func (c *Client) NextTrial(ctx context.Context, sweepID string) (api.TrialParams, error) {
	var next nextTrialResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&next).
		Post(fmt.Sprintf("/api/v1/sweeps/%s/trials/next", sweepID))
	if err != nil {
		return api.TrialParams{}, fmt.Errorf("requesting next trial: %w", err)
	}
	if res.StatusCode() == 404 || next.Done {
		return api.TrialParams{}, ErrNoMoreTrials
	}
	if !res.IsSuccess() {
		return api.TrialParams{}, fmt.Errorf("requesting next trial: status %d: %s", res.StatusCode(), res.String())
	}
	return api.TrialParams{
		LearningRate:    next.LearningRate,
		ModelCheckpoint: next.ModelCheckpoint,
	}, nil
}

// Run is one trial's record on the tracking service.
type Run struct {
	client *resty.Client
	Id     string
	Name   string
}

// Run reconstructs a handle to an already started run, for example from a
// queued trial task that carries the run id.
func (c *Client) Run(id, name string) *Run {
	return &Run{client: c.client, Id: id, Name: name}
}

type startRunResponse struct {
	RunId   string `json:"run_id"`
	RunName string `json:"run_name"`
}

func (c *Client) StartRun(ctx context.Context, sweepID string) (*Run, error) {
	var started startRunResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"sweep_id": sweepID}).
		SetResult(&started).
		Post("/api/v1/runs")
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("starting run: status %d: %s", res.StatusCode(), res.String())
	}
	return &Run{client: c.client, Id: started.RunId, Name: started.RunName}, nil
}

// LogMetrics records scalar metrics against the run.
func (r *Run) LogMetrics(ctx context.Context, values map[string]float64) error {
	res, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"metrics": values}).
		Post(fmt.Sprintf("/api/v1/runs/%s/metrics", r.Id))
	if err != nil {
		return fmt.Errorf("logging metrics for run %s: %w", r.Id, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("logging metrics for run %s: status %d", r.Id, res.StatusCode())
	}
	return nil
}

// LogReport attaches a named text artifact, such as the span-level
// classification report, to the run.
func (r *Run) LogReport(ctx context.Context, name, text string) error {
	res, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name, "content": text}).
		Post(fmt.Sprintf("/api/v1/runs/%s/files", r.Id))
	if err != nil {
		return fmt.Errorf("logging report for run %s: %w", r.Id, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("logging report for run %s: status %d", r.Id, res.StatusCode())
	}
	return nil
}

// Alert raises an error-level alert event on the run.
func (r *Run) Alert(ctx context.Context, title, text string) error {
	res, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"title": title, "text": text, "level": "ERROR"}).
		Post(fmt.Sprintf("/api/v1/runs/%s/alerts", r.Id))
	if err != nil {
		return fmt.Errorf("sending alert for run %s: %w", r.Id, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("sending alert for run %s: status %d", r.Id, res.StatusCode())
	}
	return nil
}

// Finish closes the run record. It is called for every trial, success or
// failure, so the service never sees a dangling run.
func (r *Run) Finish(ctx context.Context, state string) error {
	res, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"state": state}).
		Post(fmt.Sprintf("/api/v1/runs/%s/finish", r.Id))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", r.Id, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("finishing run %s: status %d", r.Id, res.StatusCode())
	}
	return nil
}
