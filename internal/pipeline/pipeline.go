package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/observability"
)

// TableStore reads and writes named tables. Read returns
// *domain.MissingInputError when the table does not exist.
type TableStore interface {
	Read(ctx context.Context, name string) (domain.Table, error)
	Write(ctx context.Context, t domain.Table) error
	Remove(ctx context.Context, name string) error
}

// Stage is one step of a run. A stage reads its inputs from the store and
// writes its outputs only once all of them are computed.
type Stage interface {
	Name() string
	// Outputs lists the tables the stage owns. It is consulted after a failed
	// Run, so stages with data-dependent outputs report what they planned.
	Outputs() []string
	Run(ctx context.Context, rc *domain.RunContext) error
}

// Stage outcomes recorded in metrics.
const (
	OutcomeSuccess      = "success"
	OutcomeMissingInput = "missing_input"
	OutcomeSchema       = "schema"
	OutcomeDuplicateKey = "duplicate_key"
	OutcomeMarkets      = "market_dimension"
	OutcomeError        = "error"
)

// StageReport is the outcome of one stage in a run.
type StageReport struct {
	Name     string        `json:"name"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// RunReport summarizes a completed run.
type RunReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stages     []StageReport  `json:"stages"`
	Warnings   map[string]int `json:"warnings"`
	Failed     bool           `json:"failed"`
}

// Pipeline runs the stages in order, once per Run.
type Pipeline struct {
	stages  []Stage
	store   TableStore
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	ready   atomic.Bool

	mu      sync.Mutex
	lastRun *RunReport
}

// New creates a Pipeline with the given stages and observability.
func New(store TableStore, stages []Stage, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	return &Pipeline{
		stages:  stages,
		store:   store,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
	}
}

// CheckReadiness returns nil once at least one run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastRun returns the report of the most recent completed run.
func (p *Pipeline) LastRun() (RunReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return RunReport{}, false
	}
	return *p.lastRun, true
}

// Run executes every stage once. A failing stage does not stop the run: its
// outputs are removed so downstream stages see them as missing, and its error
// is joined into the returned error. Cancellation stops before the next stage.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "stages", len(p.stages))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	start := p.clock.Now()
	rc := domain.NewRunContext(p.logger)
	rc.OnWarning = func(kind domain.WarningKind, n int) {
		p.metrics.Warnings.WithLabelValues(string(kind)).Add(float64(n))
	}

	var (
		errs   []error
		failed []string
	)
	report := RunReport{StartedAt: start}
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline stopping", "reason", err)
			errs = append(errs, err)
			break
		}
		sr := p.runStage(ctx, s, rc)
		report.Stages = append(report.Stages, sr.report)
		if sr.err != nil {
			failed = append(failed, s.Name())
			errs = append(errs, fmt.Errorf("stage %s: %w", s.Name(), sr.err))
		}
	}

	report.FinishedAt = p.clock.Now()
	report.Failed = len(errs) > 0
	report.Warnings = make(map[string]int)
	for _, kind := range []domain.WarningKind{
		domain.WarnCoercion, domain.WarnSpendMismatch, domain.WarnUnmatchedVenue, domain.WarnUntimedObservation,
	} {
		if n := rc.Warnings(kind); n > 0 {
			report.Warnings[string(kind)] = n
		}
	}
	p.mu.Lock()
	p.lastRun = &report
	p.mu.Unlock()
	p.ready.Store(true)
	p.logger.Info("pipeline finished",
		"duration", p.clock.Since(start),
		"failed_stages", failed,
		"warnings", rc.TotalWarnings(),
	)
	return errors.Join(errs...)
}

type stageResult struct {
	report StageReport
	err    error
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, rc *domain.RunContext) stageResult {
	logger := p.logger.With("stage", s.Name())
	stageRC := *rc
	stageRC.Logger = logger

	start := p.clock.Now()
	logger.Info("stage started")
	err := s.Run(ctx, &stageRC)
	elapsed := p.clock.Since(start)
	p.metrics.StageDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())

	outcome := classify(err)
	p.metrics.StageRuns.WithLabelValues(s.Name(), outcome).Inc()
	res := stageResult{report: StageReport{Name: s.Name(), Outcome: outcome, Duration: elapsed}, err: err}
	if err == nil {
		logger.Info("stage completed", "duration", elapsed)
		return res
	}
	res.report.Error = err.Error()

	logger.Error("stage failed", "outcome", outcome, "error", err)
	for _, name := range s.Outputs() {
		if rmErr := p.store.Remove(ctx, name); rmErr != nil {
			logger.Warn("remove stale output failed", "table", name, "error", rmErr)
		}
	}
	return res
}

// classify maps a stage error to a metrics outcome label.
func classify(err error) string {
	var (
		missing *domain.MissingInputError
		schema  *domain.SchemaValidationError
		dup     *domain.DuplicateKeyError
		markets *domain.MarketDimensionError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &missing):
		return OutcomeMissingInput
	case errors.As(err, &schema):
		return OutcomeSchema
	case errors.As(err, &dup):
		return OutcomeDuplicateKey
	case errors.As(err, &markets):
		return OutcomeMarkets
	default:
		return OutcomeError
	}
}
