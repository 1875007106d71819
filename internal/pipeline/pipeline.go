// Package pipeline orchestrates one generation request end to end: prompt
// the model, parse the reply, stage a workspace, run the toolchain, collect
// coverage, and assemble the final report. Toolchain slots are bounded by a
// weighted semaphore; everything before staging runs unthrottled because it
// owns no scarce resource.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"utforge/internal/coverage"
	"utforge/internal/csrc"
	"utforge/internal/extract"
	"utforge/internal/logging"
	"utforge/internal/perception"
	"utforge/internal/report"
	"utforge/internal/stage"
	"utforge/internal/store"
	"utforge/internal/toolchain"
)

// Request is one unit-test generation request.
type Request struct {
	Sources []stage.SourceFile
	Hints   string // optional extra instructions appended to the prompt
}

// Pipeline wires the collaborators for Generate.
type Pipeline struct {
	client  perception.LLMClient
	scanner *csrc.Scanner
	stager  *stage.Stager
	runner  *toolchain.Runner
	cov     *coverage.Aggregator
	history *store.Store
	sem     *semaphore.Weighted
}

// New creates a pipeline. history may be nil (persistence disabled).
// maxConcurrentRuns bounds simultaneous toolchain executions.
func New(client perception.LLMClient, stager *stage.Stager, runner *toolchain.Runner, cov *coverage.Aggregator, history *store.Store, maxConcurrentRuns int) *Pipeline {
	if maxConcurrentRuns < 1 {
		maxConcurrentRuns = 1
	}
	return &Pipeline{
		client:  client,
		scanner: csrc.NewScanner(),
		stager:  stager,
		runner:  runner,
		cov:     cov,
		history: history,
		sem:     semaphore.NewWeighted(int64(maxConcurrentRuns)),
	}
}

// Generate runs one request. The returned report is non-nil whenever enough
// survived to describe the failure; its Stage field names how far the run
// got. No internal retries: the caller decides whether to go again.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*report.FinalReport, error) {
	requestID := uuid.NewString()
	started := time.Now()
	logging.Pipeline("request %s: %d source files", requestID, len(req.Sources))

	if len(req.Sources) == 0 {
		return nil, fmt.Errorf("pipeline: request has no source files")
	}

	sourceMap := make(map[string]string, len(req.Sources))
	for _, s := range req.Sources {
		sourceMap[s.Filename] = s.Content
	}
	funcs := p.scanner.ScanFunctions(sourceMap)

	system, user := BuildPrompt(req.Sources, funcs, req.Hints)
	text, err := p.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		rep := report.Assemble(requestID, report.StageGeneration, nil, nil, coverage.Report{}, nil)
		p.persist(ctx, &rep)
		return &rep, fmt.Errorf("pipeline: model call: %w", err)
	}

	bundle, issues, err := extract.Parse(extract.RawResponse{Text: text, ReceivedAt: time.Now()})
	if err != nil {
		rep := report.Assemble(requestID, report.StageParsing, nil, nil, coverage.Report{}, issues)
		p.persist(ctx, &rep)
		if errors.Is(err, extract.ErrNoExtractableTestCases) {
			return &rep, fmt.Errorf("pipeline: %w", err)
		}
		return &rep, fmt.Errorf("pipeline: parsing response: %w", err)
	}
	logging.Pipeline("request %s: extracted %d test cases (%d issues)",
		requestID, len(bundle.TestCases), len(issues))

	// Toolchain slot. Held from staging through coverage so concurrent
	// requests cannot oversubscribe the build host.
	if err := p.sem.Acquire(ctx, 1); err != nil {
		rep := report.Assemble(requestID, report.StageParsing, bundle, nil, coverage.Report{}, issues)
		return &rep, fmt.Errorf("pipeline: acquiring execution slot: %w", err)
	}
	defer p.sem.Release(1)

	ws, err := p.stager.Stage(bundle, req.Sources, funcs)
	if err != nil {
		rep := report.Assemble(requestID, report.StageStaging, bundle, nil, coverage.Report{}, issues)
		p.persist(ctx, &rep)
		return &rep, fmt.Errorf("pipeline: %w", err)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logging.Pipeline("request %s: workspace cleanup: %v", requestID, err)
		}
	}()

	outcome, err := p.runner.Run(ctx, ws)
	if err != nil {
		rep := report.Assemble(requestID, report.StageCompilation, bundle, nil, coverage.Report{}, issues)
		p.persist(ctx, &rep)
		return &rep, fmt.Errorf("pipeline: %w", err)
	}

	var cov coverage.Report
	stageName := report.StageComplete
	switch outcome.Status {
	case toolchain.StatusCompileFailed:
		stageName = report.StageCompilation
	case toolchain.StatusCrashed:
		// Partial runs still get the aggregator: it degrades to seeded
		// zeros with an explanatory issue when no data was flushed.
		stageName = report.StageExecution
		cov = p.cov.Collect(ctx, ws, funcs)
	case toolchain.StatusTimedOut:
		stageName = report.StageExecution
	case toolchain.StatusCompleted:
		cov = p.cov.Collect(ctx, ws, funcs)
	}

	rep := report.Assemble(requestID, stageName, bundle, outcome, cov, issues)
	p.persist(ctx, &rep)
	logging.Pipeline("request %s: %s in %s (%d passed, %d failed, %.1f%% coverage)",
		requestID, rep.Stage, time.Since(started).Round(time.Millisecond),
		rep.Passed(), rep.Failed(), cov.Overall)
	return &rep, nil
}

// persist saves the run summary; failures are logged, never propagated.
func (p *Pipeline) persist(ctx context.Context, rep *report.FinalReport) {
	if err := p.history.Save(ctx, rep); err != nil {
		logging.Pipeline("request %s: history save failed: %v", rep.RequestID, err)
	}
}
