package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/pipeline"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/report"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/resilience"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/store"
	"github.com/lorenzlk/impactreportingapi-sub002/pkg/impact"
)

// pipelineEnv holds the initialized store, gateway and rules shared by the
// run/resume/serve commands. A fresh workbook writer and orchestrator are
// built per run.
type pipelineEnv struct {
	Store   store.Store
	Gateway impact.Client
	Rules   *model.RuleSet
	Cfg     pipeline.Config
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and returns the configured run-state store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initPipeline validates config, opens the store, builds the gateway with
// its shared rate limiter, circuit breaker and retry policy, and loads the
// attribution rules. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	warnings, err := cfg.Validate("pipeline")
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		zap.L().Warn(w)
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rules, err := loadRules(cfg.Rules.TeamsFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("attribution rules loaded",
		zap.Int("teams", len(rules.Teams)),
		zap.Int("rules", len(rules.Rules())),
	)

	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs,
	))
	retryCfg := resilience.FromRetryConfig(
		cfg.Retry.MaxRetries,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.JitterFraction,
	)
	retryCfg.OnRetry = resilience.RetryLogger("impact api")

	gateway := impact.NewClient(cfg.Impact.AccountSID, cfg.Impact.AuthToken,
		impact.WithBaseURL(cfg.Impact.BaseURL),
		impact.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Impact.RatePerSecond), 1)),
		impact.WithCircuitBreaker(breaker),
		impact.WithRetryConfig(retryCfg),
		impact.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Impact.TimeoutSecs) * time.Second,
		}),
	)

	return &pipelineEnv{
		Store:   st,
		Gateway: gateway,
		Rules:   rules,
		Cfg: pipeline.Config{
			SubAID:         cfg.Impact.SubAID,
			Lookback:       time.Duration(cfg.Pipeline.LookbackDays) * 24 * time.Hour,
			RequestSpacing: time.Duration(cfg.Pipeline.RequestSpacingSecs * float64(time.Second)),
			Deadline:       time.Duration(cfg.Pipeline.DeadlineSecs) * time.Second,
			Poll: pipeline.PollConfig{
				MaxAttempts:  cfg.Pipeline.PollMaxAttempts,
				InitialDelay: time.Duration(cfg.Pipeline.PollInitialSecs * float64(time.Second)),
				MaxDelay:     time.Duration(cfg.Pipeline.PollMaxSecs * float64(time.Second)),
				Multiplier:   cfg.Pipeline.PollMultiplier,
			},
		},
	}, nil
}

// loadRules loads the attribution rules, degrading to an empty rule set when
// no teams file is configured or the file does not exist. With no rules every
// record lands in the Unassigned bucket, so ingestion keeps running. A file
// that exists but fails to parse is still a hard error.
func loadRules(path string) (*model.RuleSet, error) {
	if path == "" {
		zap.L().Warn("no teams file configured, records will be attributed to Unassigned")
		return model.NewRuleSet(nil)
	}
	rules, err := model.LoadRuleSet(path)
	if err != nil {
		if eris.Is(err, fs.ErrNotExist) {
			zap.L().Warn("teams file not found, records will be attributed to Unassigned",
				zap.String("path", path))
			return model.NewRuleSet(nil)
		}
		return nil, err
	}
	return rules, nil
}

// runOnce executes a full pipeline run with a fresh workbook, returning the
// summary and the saved workbook path (empty when nothing was published).
func (pe *pipelineEnv) runOnce(ctx context.Context, workbookPath string) (*model.RunSummary, string, error) {
	writer := report.NewXLSXWriter()
	o := pipeline.New(pe.Gateway, pe.Store, pe.Rules, writer, pe.Cfg)

	summary, err := o.Run(ctx)
	if err != nil {
		return summary, "", err
	}
	return summary, saveWorkbook(writer, workbookPath, summary), nil
}

// resumeOnce resumes a suspended run, writing a fresh workbook for the
// portion processed now.
func (pe *pipelineEnv) resumeOnce(ctx context.Context, runID, workbookPath string) (*model.RunSummary, string, error) {
	writer := report.NewXLSXWriter()
	o := pipeline.New(pe.Gateway, pe.Store, pe.Rules, writer, pe.Cfg)

	summary, err := o.Resume(ctx, runID)
	if err != nil {
		return summary, "", err
	}
	return summary, saveWorkbook(writer, workbookPath, summary), nil
}

func saveWorkbook(writer *report.XLSXWriter, path string, summary *model.RunSummary) string {
	if summary == nil || summary.Succeeded == 0 {
		return ""
	}
	if err := writer.Save(path); err != nil {
		zap.L().Warn("save workbook failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// stampedPath inserts a timestamp before the extension, so concurrent or
// repeated server-triggered runs never overwrite each other's workbook.
func stampedPath(base string, now time.Time) string {
	ext := filepath.Ext(base)
	trimmed := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s-%s%s", trimmed, now.Format("20060102-150405"), ext)
}
