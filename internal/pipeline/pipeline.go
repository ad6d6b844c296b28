package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/store"
	"github.com/lorenzlk/impactreportingapi-sub002/pkg/impact"
)

// Reporter is the external reporting collaborator. The pipeline hands it the
// per-report tabular data and the final per-team totals; rendering and
// formatting beyond that are its concern.
type Reporter interface {
	PublishReport(ctx context.Context, meta ReportMeta, headers []string, rows [][]string, records []model.ClassifiedRecord) error
	PublishTotals(ctx context.Context, teams []string, totals map[string]*model.TeamTotals) error
}

// ReportMeta accompanies each published report.
type ReportMeta struct {
	ReportID   string
	ReportName string
	JobID      string
	RowCount   int
}

// Config tunes the orchestrator.
type Config struct {
	// SubAID narrows exports to one tracking account, when set.
	SubAID string
	// Lookback is the export window ending now.
	Lookback time.Duration
	// RequestSpacing is the pause between schedule calls; requests against
	// one credential window are serialized, never concurrent.
	RequestSpacing time.Duration
	// Deadline caps a run's wall-clock time, reflecting the host execution
	// ceiling. Checked between items only; zero disables it. On expiry the
	// run suspends with its job list persisted for resume.
	Deadline time.Duration
	// Poll bounds the per-job status poll loop.
	Poll PollConfig
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Lookback:       30 * 24 * time.Hour,
		RequestSpacing: 2 * time.Second,
		Poll:           DefaultPollConfig(),
	}
}

// Orchestrator sequences the run: discover, schedule, process, finalize.
// Items are handled strictly in discovery order; one item's failure never
// aborts the others. The gateway's circuit breaker and retry state are
// shared across all items and never reset mid-run.
type Orchestrator struct {
	gateway  impact.Client
	store    store.Store
	rules    *model.RuleSet
	reporter Reporter
	cfg      Config

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an orchestrator with all collaborators injected.
func New(gateway impact.Client, st store.Store, rules *model.RuleSet, reporter Reporter, cfg Config) *Orchestrator {
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll = DefaultPollConfig()
	}
	return &Orchestrator{
		gateway:  gateway,
		store:    st,
		rules:    rules,
		reporter: reporter,
		cfg:      cfg,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Run executes all four phases. A summary is always produced unless run
// creation itself fails; only an empty catalog or zero successful schedules
// are fatal.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunSummary, error) {
	run, err := o.store.CreateRun(ctx, model.RunStatusDiscovering)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run")

	deadline := time.Time{}
	if o.cfg.Deadline > 0 {
		deadline = o.now().Add(o.cfg.Deadline)
	}

	// Phase 1: discover.
	reports, err := o.gateway.DiscoverReports(ctx)
	if err != nil {
		o.failRun(ctx, run.ID, &model.RunSummary{})
		return nil, eris.Wrap(err, "pipeline: discover")
	}
	log.Info("pipeline: discovery complete", zap.Int("reports", len(reports)))

	// Phase 2: schedule, serialized with inter-item spacing.
	o.setStatus(ctx, run.ID, model.RunStatusScheduling)
	summary := &model.RunSummary{}
	params := o.exportParams()

	var jobs []model.ExportJob
	for i, report := range reports {
		if i > 0 && o.cfg.RequestSpacing > 0 {
			if err := o.sleep(ctx, o.cfg.RequestSpacing); err != nil {
				o.failRun(ctx, run.ID, summary)
				return summary, err
			}
		}

		job, err := o.gateway.ScheduleExport(ctx, report.ID, params)
		if err != nil {
			log.Warn("pipeline: schedule failed",
				zap.String("report_id", report.ID),
				zap.Error(err),
			)
			summary.Errors = append(summary.Errors, model.ItemError{
				Phase:    "schedule",
				ReportID: report.ID,
				Message:  err.Error(),
			})
			continue
		}
		job.ReportName = report.Name
		jobs = append(jobs, job)
	}

	summary.Scheduled = len(jobs)
	if len(jobs) == 0 {
		o.failRun(ctx, run.ID, summary)
		return summary, eris.New("pipeline: no reports scheduled successfully")
	}
	if err := o.store.SaveJobs(ctx, run.ID, jobs); err != nil {
		log.Warn("pipeline: persist jobs failed", zap.Error(err))
	}

	// Phases 3 and 4.
	return o.process(ctx, run.ID, jobs, summary, deadline)
}

// Resume re-enters phase 3 of a suspended run at the first non-terminal job.
// Terminal jobs are not re-polled or re-downloaded, and nothing is
// re-scheduled.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*model.RunSummary, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load run")
	}
	if !run.Resumable() {
		return nil, eris.Errorf("pipeline: run %s is %s, not resumable", runID, run.Status)
	}
	zap.L().Info("pipeline: resuming run",
		zap.String("run_id", runID),
		zap.Int("jobs", len(run.Jobs)),
	)

	deadline := time.Time{}
	if o.cfg.Deadline > 0 {
		deadline = o.now().Add(o.cfg.Deadline)
	}

	summary := &model.RunSummary{Scheduled: len(run.Jobs)}
	if run.Summary != nil {
		// Carry forward what the suspended run already processed.
		summary.Succeeded = run.Summary.Succeeded
		summary.Failed = run.Summary.Failed
		summary.TotalRows = run.Summary.TotalRows
		summary.UnassignedCount = run.Summary.UnassignedCount
		summary.Errors = run.Summary.Errors
	}

	return o.process(ctx, runID, run.Jobs, summary, deadline)
}

// process runs phase 3 (poll, download, validate, sanitize, attribute,
// aggregate per job, sequentially) and phase 4 (finalize).
func (o *Orchestrator) process(ctx context.Context, runID string, jobs []model.ExportJob, summary *model.RunSummary, deadline time.Time) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("run_id", runID))
	o.setStatus(ctx, runID, model.RunStatusProcessing)

	poller := NewJobPoller(o.gateway, o.cfg.Poll)
	agg := NewAggregator()
	// Aggregation restarts on resume; counts from the suspended portion are
	// carried in the loaded summary.
	baseUnassigned := summary.UnassignedCount

	for i := range jobs {
		job := &jobs[i]
		if job.Status.Terminal() {
			// Already handled by a prior (suspended) run.
			continue
		}

		// Cancellation and deadline are honored between items only; no
		// mid-item cancellation is attempted.
		if ctx.Err() != nil {
			return o.suspend(ctx, runID, jobs, summary, ctx.Err())
		}
		if !deadline.IsZero() && o.now().After(deadline) {
			return o.suspend(ctx, runID, jobs, summary, nil)
		}

		if err := o.processJob(ctx, job, poller, agg, summary); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, model.ItemError{
				Phase:    "process",
				ReportID: job.ReportID,
				JobID:    job.JobID,
				Message:  err.Error(),
			})
			log.Warn("pipeline: job failed",
				zap.String("job_id", job.JobID),
				zap.Error(err),
			)
		} else {
			summary.Succeeded++
		}

		summary.UnassignedCount = baseUnassigned + agg.UnassignedCount()
		if err := o.store.UpdateJob(ctx, runID, *job); err != nil {
			log.Warn("pipeline: persist job state failed", zap.Error(err))
		}
	}

	// Phase 4: finalize.
	o.setStatus(ctx, runID, model.RunStatusFinalizing)
	if len(agg.Teams()) > 0 {
		if err := o.reporter.PublishTotals(ctx, agg.Teams(), agg.Totals()); err != nil {
			log.Warn("pipeline: publish totals failed", zap.Error(err))
			summary.Errors = append(summary.Errors, model.ItemError{
				Phase:   "finalize",
				Message: err.Error(),
			})
		}
	}

	summary.UnassignedCount = baseUnassigned + agg.UnassignedCount()
	if err := o.store.SaveSummary(ctx, runID, summary); err != nil {
		log.Warn("pipeline: save summary failed", zap.Error(err))
	}
	o.setStatus(ctx, runID, model.RunStatusComplete)

	log.Info("pipeline: run complete",
		zap.Int("scheduled", summary.Scheduled),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("total_rows", summary.TotalRows),
		zap.Int("unassigned", summary.UnassignedCount),
		zap.Float64("unassigned_share", agg.UnassignedShare()),
	)
	return summary, nil
}

// processJob drives one job from scheduled to ingested.
func (o *Orchestrator) processJob(ctx context.Context, job *model.ExportJob, poller *JobPoller, agg *Aggregator, summary *model.RunSummary) error {
	polled, err := poller.PollUntilTerminal(ctx, *job)
	*job = polled
	if err != nil {
		return err
	}

	text, err := o.gateway.DownloadResult(ctx, job.ResultLocation)
	if err != nil {
		return eris.Wrapf(err, "download job %s", job.JobID)
	}

	headers, rows, err := impact.ParseDelimited(text)
	if err != nil {
		return eris.Wrapf(err, "parse job %s", job.JobID)
	}

	report := Validate(headers, rows)
	if !report.IsValid() {
		zap.L().Warn("pipeline: validation issues",
			zap.String("job_id", job.JobID),
			zap.Int("total_rows", report.Stats.TotalRows),
			zap.Int("empty_rows", report.Stats.EmptyRows),
			zap.Int("duplicate_rows", report.Stats.DuplicateRows),
			zap.Int("invalid_data", report.Stats.InvalidData),
		)
	}

	clean := Sanitize(rows)
	rs := model.NewRecordSet(headers, clean)

	attributor := NewAttributor(o.rules)
	records := attributor.ClassifyAll(rs)
	agg.Accumulate(records)
	summary.TotalRows += len(rows)

	meta := ReportMeta{
		ReportID:   job.ReportID,
		ReportName: job.ReportName,
		JobID:      job.JobID,
		RowCount:   len(rows),
	}
	if err := o.reporter.PublishReport(ctx, meta, headers, clean, records); err != nil {
		return eris.Wrapf(err, "publish job %s", job.JobID)
	}
	return nil
}

// suspend persists the job list and marks the run resumable.
func (o *Orchestrator) suspend(ctx context.Context, runID string, jobs []model.ExportJob, summary *model.RunSummary, cause error) (*model.RunSummary, error) {
	// Persist with a background-capable context: the run context may
	// already be cancelled.
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if err := o.store.SaveJobs(saveCtx, runID, jobs); err != nil {
		zap.L().Warn("pipeline: persist jobs on suspend failed", zap.Error(err))
	}
	if err := o.store.SaveSummary(saveCtx, runID, summary); err != nil {
		zap.L().Warn("pipeline: save summary on suspend failed", zap.Error(err))
	}
	o.setStatus(saveCtx, runID, model.RunStatusSuspended)

	zap.L().Info("pipeline: run suspended",
		zap.String("run_id", runID),
		zap.Int("succeeded_so_far", summary.Succeeded),
	)
	if cause != nil {
		return summary, eris.Wrap(cause, "pipeline: run suspended")
	}
	return summary, nil
}

func (o *Orchestrator) exportParams() impact.ExportParams {
	params := impact.ExportParams{SubAID: o.cfg.SubAID}
	if o.cfg.Lookback > 0 {
		end := o.now().UTC().Truncate(time.Second)
		params.DateRange = &model.DateRange{
			Start: end.Add(-o.cfg.Lookback),
			End:   end,
		}
	}
	return params
}

func (o *Orchestrator) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if err := o.store.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("pipeline: update run status failed",
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) failRun(ctx context.Context, runID string, summary *model.RunSummary) {
	if err := o.store.SaveSummary(ctx, runID, summary); err != nil {
		zap.L().Warn("pipeline: save summary failed", zap.Error(err))
	}
	o.setStatus(ctx, runID, model.RunStatusFailed)
}
