package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/exec"
)

// Result records the outcome of one external invocation.
type Result struct {
	// Name is the run name.
	Name string `json:"name"`
	// ExitCode is the exit code of the external process, propagated
	// unchanged. -1 when the process could not be started.
	ExitCode int `json:"exit_code"`
	// Took is the wall time of the invocation.
	Took       time.Duration `json:"took"`
	TookString string        `json:"took_string"`
	// LogPath is where the external process output was written.
	LogPath string `json:"log_path"`
	// OutputDir is the run's output directory.
	OutputDir string `json:"output_dir"`
}

// Invoker launches exactly one external process per Run call and
// blocks until it exits. It retains no control over what happens
// inside the process.
type Invoker struct {
	lg        *zap.Logger
	logWriter io.Writer
	exec      exec.Interface
}

// NewInvoker creates an invoker. A nil exec.Interface selects the real
// implementation; tests pass a fake.
func NewInvoker(lg *zap.Logger, logWriter io.Writer, ex exec.Interface) *Invoker {
	if lg == nil {
		lg = zap.NewNop()
	}
	if ex == nil {
		ex = exec.New()
	}
	return &Invoker{lg: lg, logWriter: logWriter, exec: ex}
}

// Run launches the configured external process and waits for it to
// exit. The returned Result always carries the propagated exit code;
// err is non-nil whenever the exit code is non-zero. There are no
// retries.
func (iv *Invoker) Run(ctx context.Context, cfg *Config) (Result, error) {
	res := Result{
		Name:      cfg.Name,
		LogPath:   cfg.RunLogPath,
		OutputDir: cfg.OutputDir,
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("failed to create output dir %q (%v)", cfg.OutputDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.RunLogPath), 0755); err != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("failed to create log dir for %q (%v)", cfg.RunLogPath, err)
	}
	logFile, err := os.OpenFile(cfg.RunLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("failed to open run log %q (%v)", cfg.RunLogPath, err)
	}
	defer func() {
		logFile.Sync()
		logFile.Close()
	}()

	wr := io.Writer(logFile)
	if iv.logWriter != nil {
		wr = io.MultiWriter(iv.logWriter, logFile)
	}

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	args := cfg.Args()
	iv.lg.Info("launching run",
		zap.String("name", cfg.Name),
		zap.String("command", cfg.CommandLine()),
		zap.String("run-log-path", cfg.RunLogPath),
	)

	cmd := iv.exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.SetStdout(wr)
	cmd.SetStderr(wr)

	now := time.Now()
	runErr := cmd.Run()
	res.Took = time.Since(now)
	res.TookString = res.Took.String()
	res.ExitCode = exitCode(runErr)

	if runErr != nil {
		iv.lg.Warn("run failed",
			zap.String("name", cfg.Name),
			zap.Int("exit-code", res.ExitCode),
			zap.String("took", res.TookString),
			zap.Error(runErr),
		)
		return res, fmt.Errorf("run %q exited %d (%v)", cfg.Name, res.ExitCode, runErr)
	}

	iv.lg.Info("run succeeded",
		zap.String("name", cfg.Name),
		zap.String("took", res.TookString),
	)
	return res, nil
}

// exitCode maps an error from Cmd.Run to the external process exit
// code: 0 on success, the process's own code on failure, -1 when the
// process never ran.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}
