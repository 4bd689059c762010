// Package pipeline runs the ordered verification stages for one
// generated project: setup, typecheck, lint, deploy. Setup failure
// halts the remaining stages; typecheck and lint are independent
// diagnostics over the same project snapshot; deploy runs whenever
// setup succeeded.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/oIoTShipTalk/convex-evals/internal/backend"
	"github.com/oIoTShipTalk/convex-evals/internal/evals"
	execrunner "github.com/oIoTShipTalk/convex-evals/internal/exec"
	"github.com/oIoTShipTalk/convex-evals/internal/report"
	"github.com/oIoTShipTalk/convex-evals/internal/verifier"
)

// WithBackendFunc runs body against a live backend instance reachable
// at the given deployment URL, releasing the instance afterwards. The
// default implementation wraps backend.WithInstance; tests substitute
// a fake.
type WithBackendFunc func(cfg backend.Config, body func(deploymentURL string) error) error

// Config assembles the pipeline's collaborators and fixed paths.
type Config struct {
	// Runner executes the external verification commands.
	Runner execrunner.CommandRunner
	// OutputRoot is the run's output directory; backend storage dirs
	// are allocated under it.
	OutputRoot string
	// ESLintConfig is the path to the fixed lint configuration.
	ESLintConfig string
	// Backend is the base backend configuration (binary, ports, probe
	// timeout). The per-project storage dir is filled in per attempt.
	Backend backend.Config
	// WithBackend overrides the backend supervisor, for tests. When
	// nil the real supervisor is used.
	WithBackend WithBackendFunc
}

// Pipeline runs the verification stages for projects, one project at
// a time.
type Pipeline struct {
	verifier    *verifier.Runner
	outputRoot  string
	eslintCfg   string
	backendCfg  backend.Config
	withBackend WithBackendFunc
}

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	withBackend := cfg.WithBackend
	if withBackend == nil {
		withBackend = func(bcfg backend.Config, body func(string) error) error {
			return backend.WithInstance(bcfg, func(inst *backend.Instance) error {
				return body(inst.URL())
			})
		}
	}

	return &Pipeline{
		verifier:    verifier.NewRunner(cfg.Runner),
		outputRoot:  cfg.OutputRoot,
		eslintCfg:   cfg.ESLintConfig,
		backendCfg:  cfg.Backend,
		withBackend: withBackend,
	}
}

// Run executes the stage pipeline for one project and returns its
// finalized report entry. Stage outcomes are recorded in pipeline
// order; a setup failure or an infrastructure error leaves the
// remaining stages unattempted.
func (p *Pipeline) Run(ctx context.Context, project *evals.Project) *report.Entry {
	entry := report.NewEntry(project.Category, project.Name)

	log.Printf("[pipeline] %s: setup", project.ID())
	outcome, infraErr := p.setup(ctx, project)
	entry.Setup = outcome
	if infraErr != nil {
		log.Printf("[pipeline] %s: aborting, %v", project.ID(), infraErr)
		return entry
	}
	if !outcome.Passed() {
		return entry
	}

	log.Printf("[pipeline] %s: typecheck", project.ID())
	outcome, infraErr = p.typecheck(ctx, project)
	entry.Typecheck = outcome
	if infraErr != nil {
		log.Printf("[pipeline] %s: aborting, %v", project.ID(), infraErr)
		return entry
	}

	log.Printf("[pipeline] %s: lint", project.ID())
	outcome, infraErr = p.lint(ctx, project)
	entry.Lint = outcome
	if infraErr != nil {
		log.Printf("[pipeline] %s: aborting, %v", project.ID(), infraErr)
		return entry
	}

	log.Printf("[pipeline] %s: deploy", project.ID())
	entry.Deploy = p.deploy(ctx, project)
	return entry
}

// setup installs dependencies and runs the framework codegen step.
// Both commands stream output to the console for visibility of long
// installs, and both must succeed.
func (p *Pipeline) setup(ctx context.Context, project *evals.Project) (*report.Outcome, error) {
	commands := [][]string{
		{"bun", "install"},
		// The codegen step's own type checking is disabled; that is a
		// separate stage.
		{"bunx", "convex", "codegen", "--typecheck", "disable", "--init"},
	}

	for _, command := range commands {
		result, err := p.verifier.RunStreaming(ctx, project.OutputDir, command[0], command[1:]...)
		if err != nil {
			return report.FailedText(err.Error()), err
		}
		if !result.OK() {
			detail := fmt.Sprintf("%s exited with code %d", commandString(command), result.ExitCode)
			return report.FailedText(detail), nil
		}
	}
	return report.OK(), nil
}

// typecheck runs the type checker against the generated convex
// subdirectory; failures carry the checker's output lines.
func (p *Pipeline) typecheck(ctx context.Context, project *evals.Project) (*report.Outcome, error) {
	result, err := p.verifier.Run(ctx, project.OutputDir, "bunx", "tsc", "-noEmit", "-p", "convex")
	if err != nil {
		return report.FailedText(err.Error()), err
	}
	if result.OK() {
		return report.OK(), nil
	}
	return report.FailedLines(result.OutputLines()), nil
}

// lint runs the linter with machine-parseable output; failures carry
// structured findings, falling back to raw text when the output does
// not parse.
func (p *Pipeline) lint(ctx context.Context, project *evals.Project) (*report.Outcome, error) {
	result, err := p.verifier.Run(ctx, project.OutputDir,
		"bunx", "eslint", "-c", p.eslintCfg, "convex", "--format", "json")
	if err != nil {
		return report.FailedText(err.Error()), err
	}
	if result.OK() {
		return report.OK(), nil
	}

	findings, parseErr := verifier.ParseLintOutput(result.Output)
	if parseErr != nil {
		return report.FailedText(string(result.Output)), nil
	}
	return report.FailedFindings(findings), nil
}

// deploy starts a backend instance scoped to this attempt and pushes
// the project's backend definitions to it. Probe timeouts and
// premature backend exits surface as normal deploy failures.
func (p *Pipeline) deploy(ctx context.Context, project *evals.Project) *report.Outcome {
	cfg := p.backendCfg
	cfg.Dir = project.BackendDir(p.outputRoot)

	var outcome *report.Outcome
	err := p.withBackend(cfg, func(deploymentURL string) error {
		result, err := p.verifier.Run(ctx, project.OutputDir,
			"bunx", "convex", "dev", "--once",
			"--admin-key", backend.AdminKey,
			"--url", deploymentURL)
		if err != nil {
			return err
		}
		if result.OK() {
			outcome = report.OK()
		} else {
			outcome = report.FailedLines(result.OutputLines())
		}
		return nil
	})
	if err != nil {
		return report.FailedText(err.Error())
	}
	return outcome
}

func commandString(command []string) string {
	s := command[0]
	for _, arg := range command[1:] {
		s += " " + arg
	}
	return s
}
