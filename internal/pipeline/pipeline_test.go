package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/oIoTShipTalk/convex-evals/internal/backend"
	"github.com/oIoTShipTalk/convex-evals/internal/evals"
	"github.com/oIoTShipTalk/convex-evals/internal/report"
)

// exitError produces a real *exec.ExitError with the given code so
// the fake runner behaves like os/exec.
func exitError(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", code)).Run()
	if err == nil {
		t.Fatalf("expected exit error for code %d", code)
	}
	return err
}

// step configures the fake runner's response for commands matched by
// substring.
type step struct {
	match  string
	output []byte
	err    error
}

// fakeRunner scripts external command behavior and records the
// commands it saw.
type fakeRunner struct {
	steps []step
	calls []string
}

func (f *fakeRunner) lookup(name string, args []string) ([]byte, error) {
	command := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, command)
	for _, s := range f.steps {
		if strings.Contains(command, s.match) {
			return s.output, s.err
		}
	}
	return nil, nil
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	return f.lookup(name, args)
}

func (f *fakeRunner) RunStreaming(_ context.Context, _ string, name string, args ...string) error {
	_, err := f.lookup(name, args)
	return err
}

func (f *fakeRunner) sawCommand(match string) bool {
	for _, c := range f.calls {
		if strings.Contains(c, match) {
			return true
		}
	}
	return false
}

// fakeBackend pretends the backend came up healthy at a fixed URL.
func fakeBackend(url string) WithBackendFunc {
	return func(_ backend.Config, body func(string) error) error {
		return body(url)
	}
}

func testProject() *evals.Project {
	return &evals.Project{
		Category:  "basic",
		Name:      "echo",
		Dir:       "/evals/basic/echo",
		OutputDir: "/out/output/basic/echo",
	}
}

func newTestPipeline(runner *fakeRunner, withBackend WithBackendFunc) *Pipeline {
	return New(Config{
		Runner:       runner,
		OutputRoot:   "/out",
		ESLintConfig: "/cfg/eslint.config.mjs",
		Backend:      backend.DefaultConfig(""),
		WithBackend:  withBackend,
	})
}

func TestRun_AllStagesPass(t *testing.T) {
	runner := &fakeRunner{}
	p := newTestPipeline(runner, fakeBackend("http://127.0.0.1:3210"))

	entry := p.Run(context.Background(), testProject())

	for i, outcome := range entry.Outcomes() {
		if !outcome.Passed() {
			t.Errorf("stage %d should pass, got %+v", i, outcome)
		}
	}
	if !runner.sawCommand("bun install") {
		t.Error("setup should run bun install")
	}
	if !runner.sawCommand("convex codegen --typecheck disable --init") {
		t.Error("setup should run framework codegen with typecheck disabled")
	}
	if !runner.sawCommand("tsc -noEmit") {
		t.Error("typecheck should run tsc")
	}
	if !runner.sawCommand("eslint -c /cfg/eslint.config.mjs convex --format json") {
		t.Error("lint should run eslint with the fixed config")
	}
	if !runner.sawCommand("convex dev --once --admin-key "+backend.AdminKey+" --url http://127.0.0.1:3210") {
		t.Error("deploy should push to the instance URL with the admin key")
	}
}

func TestRun_SetupFailureHaltsPipeline(t *testing.T) {
	runner := &fakeRunner{steps: []step{
		{match: "bun install", err: exitError(t, 1)},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	if entry.Setup.Passed() {
		t.Error("setup should fail")
	}
	if entry.Typecheck != nil || entry.Lint != nil || entry.Deploy != nil {
		t.Errorf("no stage may follow a setup failure: %+v", entry)
	}
	if runner.sawCommand("tsc") || runner.sawCommand("eslint") || runner.sawCommand("convex dev") {
		t.Error("later stage commands must not run after setup failure")
	}
}

func TestRun_CodegenStepFailureHaltsPipeline(t *testing.T) {
	runner := &fakeRunner{steps: []step{
		{match: "convex codegen", err: exitError(t, 1)},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	if entry.Setup.Passed() {
		t.Error("setup should fail when the codegen step fails")
	}
	if entry.Typecheck != nil || entry.Deploy != nil {
		t.Error("no stage may follow a setup failure")
	}
}

func TestRun_TypecheckFailureDoesNotBlockLintOrDeploy(t *testing.T) {
	runner := &fakeRunner{steps: []step{
		{match: "tsc", output: []byte("convex/a.ts(3,1): error TS2304\n"), err: exitError(t, 2)},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	if entry.Typecheck.Passed() {
		t.Error("typecheck should fail")
	}
	lines, ok := entry.Typecheck.Error.(report.TextLines)
	if !ok {
		t.Fatalf("expected TextLines diagnostics, got %T", entry.Typecheck.Error)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "TS2304") {
		t.Errorf("unexpected diagnostics: %v", lines)
	}

	if !entry.Lint.Passed() {
		t.Error("lint should still be attempted and pass")
	}
	if !entry.Deploy.Passed() {
		t.Error("deploy should still be attempted and pass")
	}
}

func TestRun_LintStructuredFindings(t *testing.T) {
	lintJSON := `[{"filePath":"convex/a.ts","messages":[{"ruleId":"eqeqeq","severity":2,"message":"use ===","line":3,"column":1,"source":"if (a == b)"}]}]`
	runner := &fakeRunner{steps: []step{
		{match: "eslint", output: []byte(lintJSON), err: exitError(t, 2)},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	findings, ok := entry.Lint.Error.(report.Findings)
	if !ok {
		t.Fatalf("expected Findings diagnostics, got %T", entry.Lint.Error)
	}
	if len(findings) != 1 || findings[0].Rule != "eqeqeq" {
		t.Errorf("unexpected findings: %v", findings)
	}
	if !entry.Typecheck.Passed() || !entry.Deploy.Passed() {
		t.Error("lint failure must not block sibling stages")
	}
}

func TestRun_LintUnparseableFallsBackToRawText(t *testing.T) {
	runner := &fakeRunner{steps: []step{
		{match: "eslint", output: []byte("eslint crashed before formatting"), err: exitError(t, 2)},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	raw, ok := entry.Lint.Error.(report.RawText)
	if !ok {
		t.Fatalf("expected RawText diagnostics, got %T", entry.Lint.Error)
	}
	if !strings.Contains(string(raw), "crashed") {
		t.Errorf("unexpected raw diagnostics: %q", raw)
	}
}

func TestRun_InfraErrorAbortsRemainingStages(t *testing.T) {
	runner := &fakeRunner{steps: []step{
		{match: "tsc", err: errors.New("exec: \"bunx\": executable file not found in $PATH")},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	if !entry.Setup.Passed() {
		t.Error("setup should pass")
	}
	if entry.Typecheck == nil || entry.Typecheck.Passed() {
		t.Error("typecheck should be recorded as failed")
	}
	if entry.Lint != nil || entry.Deploy != nil {
		t.Error("stages after an infrastructure error must be unattempted")
	}
}

func TestRun_DeployPushFailure(t *testing.T) {
	runner := &fakeRunner{steps: []step{
		{match: "convex dev", output: []byte("push rejected\n"), err: exitError(t, 1)},
	}}
	p := newTestPipeline(runner, fakeBackend("http://x"))

	entry := p.Run(context.Background(), testProject())

	if entry.Deploy.Passed() {
		t.Error("deploy should fail")
	}
	lines, ok := entry.Deploy.Error.(report.TextLines)
	if !ok || len(lines) != 1 || lines[0] != "push rejected" {
		t.Errorf("unexpected deploy diagnostics: %v", entry.Deploy.Error)
	}
}

func TestRun_BackendNeverHealthyIsDeployFailure(t *testing.T) {
	runner := &fakeRunner{}
	timeout := &backend.TimeoutError{URL: "http://127.0.0.1:3210/version", LastErr: errors.New("connection refused")}
	p := newTestPipeline(runner, func(_ backend.Config, _ func(string) error) error {
		return fmt.Errorf("backend never became healthy: %w", timeout)
	})

	entry := p.Run(context.Background(), testProject())

	if entry.Deploy == nil || entry.Deploy.Passed() {
		t.Fatal("deploy should be recorded as failed")
	}
	raw, ok := entry.Deploy.Error.(report.RawText)
	if !ok || !strings.Contains(string(raw), "connection refused") {
		t.Errorf("deploy failure should carry the last probe error: %v", entry.Deploy.Error)
	}
	if runner.sawCommand("convex dev") {
		t.Error("push must not run when the backend never came up")
	}
}
