package backend

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Fixed local instance settings. The name/key pair only authorizes the
// companion deploy-client call against a backend listening on
// localhost for the duration of one check; it is not a secret. Deploy
// attempts are strictly serialized across projects, so the fixed ports
// are never contended (make these per-attempt values before adding any
// deploy-phase parallelism).
const (
	DefaultBinary   = "convex-local-backend"
	DefaultPort     = 3210
	DefaultSitePort = 3211

	InstanceName   = "carnitas"
	InstanceSecret = "4361726e697461732c206c69746572616c6c79206d65616e696e6720226c6974"

	// AdminKey authorizes the deploy CLI against the local instance.
	// This is the key the local backend derives from the fixed
	// instance name/secret pair above.
	AdminKey = "carnitas|01c3a28a3cb5d54a24eedb34c44f173f946ef2e2a9a1a54fd35b0d35e00bfe0d66a5aee774fb9ae3fda877"
)

// Config describes one backend instance scoped to a single deploy
// attempt.
type Config struct {
	// Binary is the backend executable name or path.
	Binary string
	// Dir is the per-project storage directory for this attempt.
	Dir string
	// Port is the backend's API port.
	Port int
	// SitePort is the backend's site proxy port.
	SitePort int
	// ProbeTimeout caps the health probe. Defaults to
	// DefaultProbeTimeout when zero.
	ProbeTimeout time.Duration
}

// DefaultConfig returns a Config with the fixed local defaults,
// storing backend state under dir.
func DefaultConfig(dir string) Config {
	return Config{
		Binary:       DefaultBinary,
		Dir:          dir,
		Port:         DefaultPort,
		SitePort:     DefaultSitePort,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// Instance owns one running backend process, its two open log files,
// and its storage directory. Its lifetime is exactly one deploy
// attempt.
type Instance struct {
	cfg    Config
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	exitCh chan error
}

// URL returns the backend's deployment URL.
func (i *Instance) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", i.cfg.Port)
}

// PID returns the backend process ID.
func (i *Instance) PID() int {
	return i.cmd.Process.Pid
}

// WithInstance starts a backend process for cfg, waits for it to pass
// the health probe, runs body, and releases the instance on every
// exit path: the process is signaled to terminate and both log files
// are closed before WithInstance returns, whether body succeeded,
// body failed, or the probe never came up.
func WithInstance(cfg Config, body func(*Instance) error) error {
	inst, err := start(cfg)
	if err != nil {
		return err
	}
	defer inst.release()

	if err := inst.awaitReady(); err != nil {
		return err
	}
	return body(inst)
}

// start creates the storage directories, opens the log files, and
// launches the backend process detached from the harness's stdio.
func start(cfg Config) (*Instance, error) {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	storageDir := filepath.Join(cfg.Dir, "storage")
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating backend storage dir: %w", err)
	}

	stdout, err := os.OpenFile(filepath.Join(cfg.Dir, "backend.stdout.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening backend stdout log: %w", err)
	}
	stderr, err := os.OpenFile(filepath.Join(cfg.Dir, "backend.stderr.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("opening backend stderr log: %w", err)
	}

	cmd := exec.Command(cfg.Binary,
		"--port", strconv.Itoa(cfg.Port),
		"--site-proxy-port", strconv.Itoa(cfg.SitePort),
		"--instance-name", InstanceName,
		"--instance-secret", InstanceSecret,
		"--local-storage", storageDir,
	)
	cmd.Dir = cfg.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("starting backend process: %w", err)
	}

	inst := &Instance{
		cfg:    cfg,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		exitCh: make(chan error, 1),
	}
	go func() {
		inst.exitCh <- cmd.Wait()
	}()

	return inst, nil
}

// awaitReady races the health probe against process exit, so a
// backend that dies on startup fails immediately instead of waiting
// out the full probe timeout.
func (i *Instance) awaitReady() error {
	probeCh := make(chan error, 1)
	go func() {
		client := &http.Client{Timeout: 2 * time.Second}
		probeCh <- WaitHealthy(client, i.URL()+"/version", i.cfg.ProbeTimeout)
	}()

	select {
	case err := <-i.exitCh:
		return fmt.Errorf("backend process exited prematurely: %v", err)
	case err := <-probeCh:
		if err != nil {
			return fmt.Errorf("backend never became healthy: %w", err)
		}
		return nil
	}
}

// release signals the process to terminate and closes both log
// handles. Termination is fire-and-forget: each attempt uses a fresh
// storage directory and the fixed port is reused serially, so there
// is no need to wait for exit confirmation. The exit watcher
// goroutine reaps the process.
func (i *Instance) release() {
	if i.cmd.Process != nil {
		_ = i.cmd.Process.Kill()
	}
	i.stdout.Close()
	i.stderr.Close()
}
