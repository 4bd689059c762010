// Package orchestrator drives one evaluation run end to end:
// discover the test cases, generate candidate projects, run the
// verification pipeline per project, and aggregate the report.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/oIoTShipTalk/convex-evals/internal/codegen"
	"github.com/oIoTShipTalk/convex-evals/internal/evals"
	"github.com/oIoTShipTalk/convex-evals/internal/report"
)

// PipelineRunner runs the verification stages for one project. The
// pipeline package provides the real implementation.
type PipelineRunner interface {
	Run(ctx context.Context, project *evals.Project) *report.Entry
}

// Config assembles an evaluation run.
type Config struct {
	// EvalsRoot is the directory containing <category>/<test>/TASK.txt
	// trees.
	EvalsRoot string
	// OutputRoot receives generated projects and backend storage.
	OutputRoot string
	// Filter optionally restricts discovery by test name.
	Filter *regexp.Regexp
	// SkipGeneration reuses projects already on disk.
	SkipGeneration bool
	// SkipEvaluation stops after generation.
	SkipEvaluation bool
	// Concurrency caps parallel generation calls. It gates only the
	// generation phase: evaluation is strictly serial because the
	// deploy stage binds fixed local ports. Zero means one generation
	// call per discovered project.
	Concurrency int
	// Generator produces candidate projects.
	Generator codegen.Generator
	// Pipeline runs the verification stages.
	Pipeline PipelineRunner
}

// Orchestrator coordinates the generation and evaluation phases for a
// batch of projects.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes the full batch. The returned report has one entry per
// evaluated project in discovery order. A generation failure is
// run-fatal and aborts before any evaluation; evaluation failures are
// recorded per project and never abort sibling projects.
func (o *Orchestrator) Run(ctx context.Context) (*report.Report, error) {
	projects, err := evals.Discover(o.cfg.EvalsRoot, o.cfg.OutputRoot, o.cfg.Filter)
	if err != nil {
		return nil, err
	}
	log.Printf("[orchestrator] discovered %d test case(s)", len(projects))

	if !o.cfg.SkipGeneration {
		if err := o.generateAll(ctx, projects); err != nil {
			return nil, fmt.Errorf("generation phase failed: %w", err)
		}
	}

	rep := &report.Report{}
	if o.cfg.SkipEvaluation {
		return rep, nil
	}

	// Evaluation is deliberately one project at a time: the deploy
	// stage reuses fixed local ports, so concurrent deploys would
	// collide.
	for _, project := range projects {
		rep.Append(o.cfg.Pipeline.Run(ctx, project))
	}
	return rep, nil
}

// generateAll runs generation for every project concurrently, writing
// each result under the project's own output directory. The phase is
// all-or-nothing: any single project's failure fails the whole phase.
func (o *Orchestrator) generateAll(ctx context.Context, projects []*evals.Project) error {
	limit := o.cfg.Concurrency
	if limit <= 0 {
		limit = len(projects)
	}
	if limit == 0 {
		return nil
	}
	sem := semaphore.NewWeighted(int64(limit))

	g, gctx := errgroup.WithContext(ctx)
	for _, project := range projects {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			log.Printf("[orchestrator] generating %s", project.ID())
			task, err := project.Task()
			if err != nil {
				return err
			}

			files, err := o.cfg.Generator.Generate(gctx, task)
			if err != nil {
				return fmt.Errorf("generating %s: %w", project.ID(), err)
			}
			if err := codegen.WriteFiles(project.OutputDir, files); err != nil {
				return fmt.Errorf("writing %s: %w", project.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
