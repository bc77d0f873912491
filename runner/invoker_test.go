package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"k8s.io/utils/exec"
	fakeexec "k8s.io/utils/exec/testing"
)

func fakeInvoker(fcmd *fakeexec.FakeCmd, n int) *Invoker {
	fexec := &fakeexec.FakeExec{}
	for i := 0; i < n; i++ {
		fexec.CommandScript = append(fexec.CommandScript,
			func(cmd string, args ...string) exec.Cmd {
				return fakeexec.InitFakeCmd(fcmd, cmd, args...)
			},
		)
	}
	return NewInvoker(zap.NewNop(), nil, fexec)
}

func TestInvokerRunSuccess(t *testing.T) {
	fcmd := &fakeexec.FakeCmd{
		RunScript: []fakeexec.FakeAction{
			func() ([]byte, []byte, error) { return []byte("epoch done\n"), nil, nil },
		},
	}
	iv := fakeInvoker(fcmd, 1)

	cfg := evalConfig(t)
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}

	res, err := iv.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("unexpected exit code %d", res.ExitCode)
	}

	d, err := os.ReadFile(cfg.RunLogPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(d), "epoch done") {
		t.Fatalf("run log missing process output: %q", string(d))
	}
	if len(fcmd.RunLog) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(fcmd.RunLog))
	}
	if got := fcmd.RunLog[0][0]; got != "python" {
		t.Fatalf("unexpected executable %q", got)
	}
}

func TestInvokerRunExitCode(t *testing.T) {
	fcmd := &fakeexec.FakeCmd{
		RunScript: []fakeexec.FakeAction{
			func() ([]byte, []byte, error) {
				return nil, []byte("CUDA out of memory\n"), &fakeexec.FakeExitError{Status: 3}
			},
		},
	}
	iv := fakeInvoker(fcmd, 1)

	cfg := evalConfig(t)
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}

	res, err := iv.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected run error")
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}

	d, rerr := os.ReadFile(cfg.RunLogPath)
	if rerr != nil {
		t.Fatal(rerr)
	}
	if !strings.Contains(string(d), "CUDA out of memory") {
		t.Fatalf("run log missing process stderr: %q", string(d))
	}
}

func TestInvokerRunNotStarted(t *testing.T) {
	fcmd := &fakeexec.FakeCmd{
		RunScript: []fakeexec.FakeAction{
			func() ([]byte, []byte, error) {
				return nil, nil, errors.New(`exec: "python": executable file not found in $PATH`)
			},
		},
	}
	iv := fakeInvoker(fcmd, 1)

	cfg := evalConfig(t)
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}

	res, err := iv.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected run error")
	}
	if res.ExitCode != -1 {
		t.Fatalf("expected exit code -1, got %d", res.ExitCode)
	}
}

func TestInvokerCreatesOutputDir(t *testing.T) {
	fcmd := &fakeexec.FakeCmd{
		RunScript: []fakeexec.FakeAction{
			func() ([]byte, []byte, error) { return nil, nil, nil },
		},
	}
	iv := fakeInvoker(fcmd, 1)

	cfg := evalConfig(t)
	cfg.OutputDir = filepath.Join(t.TempDir(), "nested", "out")
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if _, err := iv.Run(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.OutputDir); err != nil {
		t.Fatal(err)
	}
}
